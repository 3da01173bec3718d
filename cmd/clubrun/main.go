package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"clubrun/internal/config"
	"clubrun/internal/content"
	"clubrun/internal/db"
	"clubrun/internal/domain"
	"clubrun/internal/ledger"
	"clubrun/internal/migrate"
	"clubrun/internal/payment"
	"clubrun/internal/repo"
	"clubrun/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "clubrun",
	Short: "Club Run CLI",
	Long: `Club Run is a peer-to-peer escrow ledger for event promotion missions.
Curators post missions with a budget and a deadline, runners accept them,
play the gig, submit proof of play, and get paid on approval.
Core concepts:
- Workspace: the .clubrun directory holding the SQLite ledger.
- Mission: one promotion gig; OPEN -> ASSIGNED -> IN_PROGRESS -> COMPLETED,
  with CANCELLED and DISPUTED as exits.
- Content: mission briefs and proofs are content-addressed blobs; the CID on
  the mission record makes tampering visible.
- Settlement: approval pays the runner over the mission's payment method
  (matic, usdc, cashapp, zelle, venmo, paypal) and records the transfer.
- Event log: diary of every transition, view with 'clubrun log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CLUBRUN")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(missionCmd())
	rootCmd.AddCommand(teamCmd())
	rootCmd.AddCommand(runnerCmd())
	rootCmd.AddCommand(roleCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create workspace and default config",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				fmt.Printf("Config %s already exists\n", path)
				return nil
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Initialized workspace; config at %s, database at %s\n", path, db.Path(workspace))
			return nil
		},
	}
	return cmd
}

func missionCmd() *cobra.Command {
	m := &cobra.Command{Use: "mission", Short: "Manage missions"}
	m.AddCommand(missionCreateCmd())
	m.AddCommand(missionListCmd())
	m.AddCommand(missionShowCmd())
	m.AddCommand(missionAcceptCmd())
	m.AddCommand(missionProofCmd())
	m.AddCommand(missionApproveCmd())
	m.AddCommand(missionCancelCmd())
	m.AddCommand(missionDisputeCmd())
	return m
}

func missionCreateCmd() *cobra.Command {
	var title, description, venue, eventType, budget, deadline, method, teamID string
	var requirements []string
	var openMarket bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a mission",
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(budget)
			if err != nil {
				return fmt.Errorf("--budget must be a decimal number: %w", err)
			}
			due, err := time.Parse(time.RFC3339, deadline)
			if err != nil {
				return fmt.Errorf("--deadline must be RFC 3339: %w", err)
			}
			return withLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				m, err := l.CreateMission(ctx, ledger.CreateOptions{
					CuratorID: viper.GetString("actor-id"),
					Content: content.MissionContent{
						Title:        title,
						Description:  description,
						VenueAddress: venue,
						EventType:    eventType,
						Requirements: requirements,
					},
					Budget:        amount,
					Deadline:      due,
					PaymentMethod: method,
					TeamID:        teamID,
					OpenMarket:    openMarket,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "mission title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&venue, "venue", "", "venue address")
	cmd.Flags().StringVar(&eventType, "event-type", "", "event type")
	cmd.Flags().StringArrayVar(&requirements, "require", []string{}, "requirement (repeatable)")
	cmd.Flags().StringVar(&budget, "budget", "", "escrow budget")
	cmd.Flags().StringVar(&deadline, "deadline", "", "acceptance deadline (RFC 3339)")
	cmd.Flags().StringVar(&method, "method", "", "payment method ("+strings.Join(payment.Methods(), ", ")+")")
	cmd.Flags().StringVar(&teamID, "team", "", "restrict to team")
	cmd.Flags().BoolVar(&openMarket, "open-market", false, "visible to every runner")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("venue")
	_ = cmd.MarkFlagRequired("event-type")
	_ = cmd.MarkFlagRequired("budget")
	_ = cmd.MarkFlagRequired("deadline")
	_ = cmd.MarkFlagRequired("method")
	return cmd
}

func missionListCmd() *cobra.Command {
	var status, method, minBudget, maxBudget string
	var teamOnly bool
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List visible missions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				f := repo.MissionFilters{
					ViewerID:      viper.GetString("actor-id"),
					Status:        status,
					PaymentMethod: method,
					TeamOnly:      teamOnly,
					Limit:         limit,
				}
				if minBudget != "" {
					v, err := decimal.NewFromString(minBudget)
					if err != nil {
						return fmt.Errorf("--min-budget must be a decimal number: %w", err)
					}
					f.MinBudget = &v
				}
				if maxBudget != "" {
					v, err := decimal.NewFromString(maxBudget)
					if err != nil {
						return fmt.Errorf("--max-budget must be a decimal number: %w", err)
					}
					f.MaxBudget = &v
				}
				missions, err := l.ListMissions(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(missions)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Status", "Budget", "Method", "Deadline", "Runner"})
				for _, m := range missions {
					runner := ""
					if m.RunnerID != nil {
						runner = *m.RunnerID
					}
					status := m.Status
					if l.Expired(m) {
						status += " (expired)"
					}
					tw.AppendRow(table.Row{m.ID, status, m.Budget.String(), m.PaymentMethod, m.Deadline, runner})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&method, "method", "", "payment method filter")
	cmd.Flags().StringVar(&minBudget, "min-budget", "", "minimum budget")
	cmd.Flags().StringVar(&maxBudget, "max-budget", "", "maximum budget")
	cmd.Flags().BoolVar(&teamOnly, "team-only", false, "only team-restricted missions")
	cmd.Flags().IntVar(&limit, "limit", 50, "max results")
	return cmd
}

func missionShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show mission with content and proof",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				detail, err := l.GetMission(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(detail)
			})
		},
	}
	return cmd
}

func missionAcceptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accept <id>",
		Short: "Accept an open mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				m, err := l.Accept(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	return cmd
}

func missionProofCmd() *cobra.Command {
	var notes, location, audio string
	var photos []string
	cmd := &cobra.Command{
		Use:   "proof <id>",
		Short: "Submit proof of play",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				proof := content.ProofOfPlay{
					Notes:    notes,
					Location: location,
					Photos:   photos,
					Audio:    optionalString(audio),
				}
				m, err := l.SubmitProof(ctx, args[0], viper.GetString("actor-id"), proof)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	cmd.Flags().StringVar(&location, "location", "", "where the set was played")
	cmd.Flags().StringArrayVar(&photos, "photo", []string{}, "photo URL or CID (repeatable)")
	cmd.Flags().StringVar(&audio, "audio", "", "audio recording URL or CID")
	_ = cmd.MarkFlagRequired("location")
	_ = cmd.MarkFlagRequired("photo")
	return cmd
}

func missionApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve proof and settle payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				m, settlement, err := l.Approve(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(m)
				}
				fmt.Printf("Mission %s completed; paid %s via %s to %s (ref %s)\n",
					m.ID, settlement.Amount.String(), settlement.Method, settlement.Recipient, settlement.ExternalRef)
				return nil
			})
		},
	}
	return cmd
}

func missionCancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel an open mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				m, err := l.Cancel(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	return cmd
}

func missionDisputeCmd() *cobra.Command {
	var reason, evidence string
	cmd := &cobra.Command{
		Use:   "dispute <id>",
		Short: "Raise a dispute",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				m, err := l.Dispute(ctx, args[0], viper.GetString("actor-id"), reason, evidence)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "dispute reason")
	cmd.Flags().StringVar(&evidence, "evidence", "", "supporting evidence")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func teamCmd() *cobra.Command {
	t := &cobra.Command{Use: "team", Short: "Manage teams"}
	t.AddCommand(teamCreateCmd())
	t.AddCommand(teamShowCmd())
	t.AddCommand(teamListCmd())
	t.AddCommand(teamAddMemberCmd())
	t.AddCommand(teamRemoveMemberCmd())
	return t
}

func teamCreateCmd() *cobra.Command {
	var name string
	var members []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a team",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				t, err := l.CreateTeam(ctx, name, members)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "team name")
	cmd.Flags().StringArrayVar(&members, "member", []string{}, "member actor id (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func teamShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				t, err := l.GetTeam(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func teamListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List teams",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				teams, err := l.Repo.ListTeams(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(teams)
			})
		},
	}
	return cmd
}

func teamAddMemberCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-member <team-id> <actor-id>",
		Short: "Add a team member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				return l.AddTeamMember(ctx, args[0], args[1])
			})
		},
	}
	return cmd
}

func teamRemoveMemberCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove-member <team-id> <actor-id>",
		Short: "Remove a team member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				return l.RemoveTeamMember(ctx, args[0], args[1])
			})
		},
	}
	return cmd
}

func runnerCmd() *cobra.Command {
	r := &cobra.Command{Use: "runner", Short: "Manage runner payout profiles"}
	r.AddCommand(runnerProfileSetCmd())
	r.AddCommand(runnerProfileShowCmd())
	return r
}

func runnerProfileSetCmd() *cobra.Command {
	var wallet, cashapp, zelle, venmo, paypal string
	cmd := &cobra.Command{
		Use:   "profile-set",
		Short: "Set own payout profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				p, err := l.UpsertRunnerProfile(ctx, domain.RunnerProfile{
					ActorID:       viper.GetString("actor-id"),
					WalletAddress: optionalString(wallet),
					CashAppHandle: optionalString(cashapp),
					ZelleHandle:   optionalString(zelle),
					VenmoHandle:   optionalString(venmo),
					PaypalEmail:   optionalString(paypal),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&wallet, "wallet", "", "0x wallet address for matic and usdc")
	cmd.Flags().StringVar(&cashapp, "cashapp", "", "Cash App cashtag")
	cmd.Flags().StringVar(&zelle, "zelle", "", "Zelle handle")
	cmd.Flags().StringVar(&venmo, "venmo", "", "Venmo handle")
	cmd.Flags().StringVar(&paypal, "paypal", "", "PayPal email")
	return cmd
}

func runnerProfileShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile-show",
		Short: "Show own payout profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				p, err := l.GetRunnerProfile(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func roleCmd() *cobra.Command {
	r := &cobra.Command{Use: "role", Short: "Manage actor roles"}
	assign := &cobra.Command{
		Use:   "assign <actor-id> <role>",
		Short: "Assign a role (CLIENT, CURATOR, RUNNER, ADMIN)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				return l.Repo.AssignRole(ctx, args[0], strings.ToUpper(args[1]))
			})
		},
	}
	revoke := &cobra.Command{
		Use:   "revoke <actor-id> <role>",
		Short: "Revoke a role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				return l.Repo.RevokeRole(ctx, args[0], strings.ToUpper(args[1]))
			})
		},
	}
	show := &cobra.Command{
		Use:   "show <actor-id>",
		Short: "Show an actor's roles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				roles, err := l.Repo.ActorRoles(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(roles)
			})
		},
	}
	r.AddCommand(assign, revoke, show)
	return r
}

func apikeyCmd() *cobra.Command {
	k := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	create := &cobra.Command{
		Use:   "create <actor-id>",
		Short: "Issue an API key (printed once)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			return withLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				rawKey := "crk_" + strings.ReplaceAll(uuid.New().String(), "-", "")
				key := domain.APIKey{
					ID:        uuid.New().String(),
					ActorID:   args[0],
					Name:      name,
					KeyHash:   repo.HashAPIKey(rawKey),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				tx, err := l.DB.BeginTx(ctx, nil)
				if err != nil {
					return err
				}
				defer tx.Rollback()
				if err := l.Repo.InsertAPIKey(ctx, tx, key); err != nil {
					return err
				}
				if err := tx.Commit(); err != nil {
					return err
				}
				fmt.Printf("API key for %s (id %s):\n%s\n", key.ActorID, key.ID, rawKey)
				return nil
			})
		},
	}
	create.Flags().String("name", "", "key label")
	revoke := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				return l.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	k.AddCommand(create, revoke)
	return k
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Event log"}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, missionID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				events, err := l.Repo.LatestEvents(ctx, n, evtType, missionID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&missionID, "mission-id", "", "mission id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			l := newLedger(conn, cfg)
			secret := os.Getenv("CLUBRUN_JWT_SECRET")
			if secret == "" {
				secret = cfg.Auth.JWTSecret
			}
			if secret == "" {
				return fmt.Errorf("jwt secret required: set CLUBRUN_JWT_SECRET or auth.jwt_secret in %s", config.Path(workspace))
			}
			authCfg := server.AuthConfig{
				JWTSecret: secret,
				TokenTTL:  time.Duration(cfg.Auth.TokenTTLMin) * time.Minute,
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			handler, err := server.New(server.Config{
				Ledger:   l,
				BasePath: basePath,
				Auth:     authCfg,
				Webhooks: cfg.Webhooks,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Club Run API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func newLedger(conn *sql.DB, cfg *config.Config) ledger.Ledger {
	var store content.Store = content.SQLStore{DB: conn}
	if cfg.Content.Backend == "ipfs" {
		store = content.NewIPFSStore(cfg.Content.IPFSAPI)
	}
	var rail payment.Rail = &payment.StaticRail{}
	if cfg.Payments.Mode == "gateway" {
		rail = payment.NewHTTPRail(cfg.Payments.URL, cfg.Payments.APIKey)
	}
	return ledger.New(conn, store, rail)
}

func withLedger(ctx context.Context, fn func(context.Context, ledger.Ledger) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, newLedger(conn, cfg))
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
