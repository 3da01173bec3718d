package content

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Payload kinds stored in the content store. Bodies are validated here, at
// the store boundary, rather than passed through opaquely.
const (
	KindMission = "mission"
	KindProof   = "proof_of_play"
)

// MissionContent is the full mission description referenced by a mission
// record's content CID.
type MissionContent struct {
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	VenueAddress string   `json:"venue_address"`
	EventType    string   `json:"event_type"`
	Requirements []string `json:"requirements,omitempty"`
}

func (c MissionContent) Validate() error {
	if c.Title == "" {
		return errors.New("title is required")
	}
	if c.VenueAddress == "" {
		return errors.New("venue_address is required")
	}
	if c.EventType == "" {
		return errors.New("event_type is required")
	}
	return nil
}

// ProofOfPlay is the completion evidence a runner submits.
type ProofOfPlay struct {
	Notes    string   `json:"notes,omitempty"`
	Location string   `json:"location"`
	Photos   []string `json:"photos"`
	Audio    *string  `json:"audio,omitempty"`
}

func (p ProofOfPlay) Validate() error {
	if p.Location == "" {
		return errors.New("location is required")
	}
	if len(p.Photos) == 0 {
		return errors.New("at least one photo is required")
	}
	return nil
}

// EncodeMission validates and marshals mission content.
func EncodeMission(c MissionContent) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("mission content: %w", err)
	}
	return json.Marshal(c)
}

// EncodeProof validates and marshals proof-of-play evidence.
func EncodeProof(p ProofOfPlay) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("proof of play: %w", err)
	}
	return json.Marshal(p)
}

// DecodeMission unmarshals a mission body fetched from the store.
func DecodeMission(data []byte) (MissionContent, error) {
	var c MissionContent
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("decode mission content: %w", err)
	}
	return c, nil
}

// DecodeProof unmarshals a proof body fetched from the store.
func DecodeProof(data []byte) (ProofOfPlay, error) {
	var p ProofOfPlay
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decode proof of play: %w", err)
	}
	return p, nil
}
