package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/local/steward/internal/actions"
	"github.com/local/steward/internal/ai"
	"github.com/local/steward/internal/alert"
	"github.com/local/steward/internal/cache"
	"github.com/local/steward/internal/channels"
	"github.com/local/steward/internal/chat"
	"github.com/local/steward/internal/config"
	"github.com/local/steward/internal/contextengine"
	"github.com/local/steward/internal/cron"
	"github.com/local/steward/internal/nlp"
	"github.com/local/steward/internal/outcomes"
	"github.com/local/steward/internal/pipeline"
	"github.com/local/steward/internal/plan"
	"github.com/local/steward/internal/providers"
	"github.com/local/steward/internal/registry"
	"github.com/local/steward/internal/skills"
	"github.com/local/steward/internal/storage"
	"github.com/local/steward/internal/voice"
	"github.com/local/steward/internal/webhook"
)

const version = "0.1.0"

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "steward",
		Short: "steward — long-running personal assistant service",
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("steward v%s\n", version)
		},
	})

	onboardCmd := &cobra.Command{
		Use:   "onboard",
		Short: "Scaffold skill-discovery directories, or onboard a specific channel",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Load()
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
				os.Exit(1)
			}
			if err := config.Onboard(cfg); err != nil {
				fmt.Fprintf(os.Stderr, "onboard failed: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Created skill directories at %s and %s\n", cfg.SkillsUniversalDir, cfg.SkillsLocalDir)
		},
	}

	onboardCmd.AddCommand(&cobra.Command{
		Use:   "whatsapp",
		Short: "Setup WhatsApp authentication (shows QR code)",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Load()
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
				os.Exit(1)
			}
			dbPath := cfg.WhatsApp.DBPath
			if dbPath == "" {
				dbPath = "./data/whatsapp.db"
			}
			if err := channels.SetupWhatsApp(dbPath); err != nil {
				fmt.Fprintf(os.Stderr, "WhatsApp setup failed: %v\n", err)
				os.Exit(1)
			}
			fmt.Println("\nWhatsApp setup complete! You can now enable it with WHATSAPP_ENABLED=true and start the service.")
		},
	})
	rootCmd.AddCommand(onboardCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the long-running assistant service",
		Run: func(cmd *cobra.Command, args []string) {
			if err := runServe(); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
		},
	}
	rootCmd.AddCommand(serveCmd)

	return rootCmd
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := storage.Open(cfg.MemoryDBPath, cfg.StateDBPath)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating storage: %w", err)
	}

	reg, err := registry.New(ctx, store)
	if err != nil {
		return fmt.Errorf("building registry: %w", err)
	}

	tracker := outcomes.New(store)
	ctxEngine := contextengine.New(store, reg, tracker, nil)

	router, err := buildRouter(ctx, cfg)
	if err != nil {
		return fmt.Errorf("building AI router: %w", err)
	}

	skillsReg := skills.NewRegistry()
	skillsReg.Register(skills.NewRememberSkill(store))
	skillsReg.Register(skills.NewStatusSkill(store))
	skillsReg.Register(skills.NewDeploySkill())
	skillsReg.Register(skills.NewPlanSkill())
	if err := skillsReg.Discover([]string{cfg.SkillsUniversalDir, cfg.SkillsLocalDir}, skills.LoadDir); err != nil {
		log.Printf("steward: skill discovery failed: %v", err)
	}
	skillsReg.Sort()

	actionsC := actions.New(store)
	actionsC.RegisterRunner("deploy", func(ctx context.Context, params string) (string, error) {
		return "no deploy target is configured; logged deploy request for " + params, nil
	})
	actionsC.StartSweeper(ctx)

	planExec := plan.New(store, router, unconfiguredRepoProvider{})
	actionsC.RegisterRunner("plan", func(ctx context.Context, params string) (string, error) {
		parts := strings.SplitN(params, "|", 3)
		if len(parts) != 3 {
			return "", fmt.Errorf("malformed plan action params %q", params)
		}
		userID, project, instruction := parts[0], parts[1], parts[2]
		return planExec.Run(ctx, userID, instruction, project, func(phase, detail string) {
			log.Printf("steward: plan phase %s: %s", phase, detail)
		})
	})

	hub := chat.NewHub(200)

	voiceProvider := voice.NewHTTPProvider(os.Getenv("VOICE_PROVIDER_URL"), os.Getenv("VOICE_PROVIDER_API_KEY"))
	notify := buildNotifier(hub, voiceProvider, cfg.HQChatID, cfg.AutoCallEnabled)
	ladder := alert.New(store, notify)
	go ladder.Run(ctx)

	scheduler := cron.New(store, 4)
	registerCronHandlers(scheduler, hub, router, cfg.HQChatID)
	if err := scheduler.RegisterDefaults(ctx, cfg.NightlyAutonomousCron); err != nil {
		log.Printf("steward: registering default cron jobs failed: %v", err)
	}
	go scheduler.Run(ctx)

	pre := nlp.New()
	pl := pipeline.New(hub, cfg.AuthorizedUsers, actionsC, pre, skillsReg, ctxEngine, router, tracker, 16)
	go pl.Run(ctx)

	startChannels(ctx, cfg, hub)

	if cfg.Webhook.Enabled {
		srv := webhook.New(cfg.Webhook.ListenAddr, cfg.Webhook.APIKey, cfg.Webhook.SharedSecret, webhookHandlers(cfg, hub))
		go func() {
			if err := srv.Start(ctx); err != nil && err != http.ErrServerClosed {
				log.Printf("steward: webhook server stopped: %v", err)
			}
		}()
	}

	hub.StartRouter(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("steward: shutting down")
	cancel()
	return nil
}

// buildRouter assembles the provider table from whichever upstream AI
// credentials are configured, falling back to the stub provider so the
// service still runs (with canned replies) when no key is set.
func buildRouter(ctx context.Context, cfg *config.Config) (*ai.Router, error) {
	var all []providers.Provider
	var defaultCoder providers.Provider

	if cfg.Providers.Anthropic != nil {
		p := providers.NewAnthropic(cfg.Providers.Anthropic.APIKey, "claude-sonnet-4-5")
		all = append(all, p)
		defaultCoder = p
	}
	if cfg.Providers.OpenAI != nil {
		p := providers.NewOpenAI(cfg.Providers.OpenAI.APIKey, "gpt-4o")
		all = append(all, p)
		if defaultCoder == nil {
			defaultCoder = p
		}
	}
	if cfg.Providers.Gemini != nil {
		p, err := providers.NewGemini(ctx, cfg.Providers.Gemini.APIKey, "gemini-2.0-flash")
		if err != nil {
			return nil, fmt.Errorf("gemini provider: %w", err)
		}
		all = append(all, p)
	}
	if len(all) == 0 {
		stub := providers.NewStub()
		all = append(all, stub)
		defaultCoder = stub
	}

	table := map[providers.TaskClass][]providers.Provider{
		providers.ClassGreeting: all,
		providers.ClassSimple:   all,
		providers.ClassPlanning: all,
		providers.ClassCoding:   all,
		providers.ClassSocial:   all,
		providers.ClassResearch: all,
		providers.ClassComplex:  all,
	}

	var c *cache.LRU
	if cfg.Cache.Enabled {
		c = cache.New(cfg.Cache.MaxSize, time.Duration(cfg.Cache.TTL)*time.Second)
	}

	return ai.NewRouter(table, defaultCoder, c, cfg.Cache.Enabled, cfg.Cache.TTL), nil
}

// buildNotifier renders each alert tier onto the shared chat hub, except
// the voice tier, which places a call through the configured voice
// provider when auto-calling is enabled.
func buildNotifier(hub *chat.Hub, vp *voice.HTTPProvider, hqChatID string, autoCall bool) alert.Notifier {
	return func(ctx context.Context, tier, body string) error {
		if tier == alert.TierVoice {
			if !autoCall || hqChatID == "" {
				log.Printf("steward: voice escalation suppressed (auto-call disabled): %s", body)
				return nil
			}
			_, err := vp.PlaceCall(ctx, hqChatID, "alert-critical")
			return err
		}
		if hqChatID == "" {
			log.Printf("steward: no HQ chat configured, dropping %s alert: %s", tier, body)
			return nil
		}
		hub.Out <- chat.Outbound{Channel: "telegram", ChatID: hqChatID, Content: body}
		return nil
	}
}

// registerCronHandlers wires the default job set's handler refs to actual
// behavior: routine digests go to the HQ chat, nightlyAutonomous runs a
// planning query through the AI router and reports the result.
func registerCronHandlers(s *cron.Scheduler, hub *chat.Hub, router *ai.Router, hqChatID string) {
	deliver := func(body string) {
		if hqChatID == "" {
			log.Printf("steward: cron fired with no HQ chat configured: %s", body)
			return
		}
		hub.Out <- chat.Outbound{Channel: "telegram", ChatID: hqChatID, Content: body}
	}

	s.RegisterHandler("morningBrief", func(ctx context.Context, params string) error {
		deliver("Good morning. New day, clean slate.")
		return nil
	})
	s.RegisterHandler("eveningDigest", func(ctx context.Context, params string) error {
		deliver("Evening digest: wrapping up the day.")
		return nil
	})
	s.RegisterHandler("heartbeat", func(ctx context.Context, params string) error {
		log.Println("steward: heartbeat")
		return nil
	})
	s.RegisterHandler("deadlineCheck", func(ctx context.Context, params string) error {
		return nil
	})
	s.RegisterHandler("nightlyAutonomous", func(ctx context.Context, params string) error {
		result, err := router.Run(ctx, "Review open work and summarize anything that needs attention tomorrow.", providers.ClassPlanning, "")
		if err != nil {
			return err
		}
		deliver("Nightly review: " + result.Text)
		return nil
	})
}

func startChannels(ctx context.Context, cfg *config.Config, hub *chat.Hub) {
	if cfg.Telegram.Enabled {
		go func() {
			if err := channels.StartTelegram(ctx, hub, cfg.Telegram.Token, cfg.AuthorizedUsers); err != nil {
				log.Printf("steward: telegram adapter stopped: %v", err)
			}
		}()
	}
	if cfg.Discord.Enabled {
		go func() {
			if err := channels.StartDiscord(ctx, hub, cfg.Discord.Token, cfg.Discord.GuildID, cfg.AuthorizedUsers); err != nil {
				log.Printf("steward: discord adapter stopped: %v", err)
			}
		}()
	}
	if cfg.WhatsApp.Enabled {
		dbPath := cfg.WhatsApp.DBPath
		if dbPath == "" {
			dbPath = "./data/whatsapp.db"
		}
		go func() {
			if err := channels.StartWhatsApp(ctx, hub, dbPath, cfg.WhatsApp.AllowFrom); err != nil {
				log.Printf("steward: whatsapp adapter stopped: %v", err)
			}
		}()
	}
}

// webhookHandlers wires C13's secondary-webhook and voice endpoints.
// PrimaryInbound and RepoEvent are left unset: the primary platform runs
// through its own long-polling adapter in this deployment, and no
// concrete repo-provider webhook format is wired (see internal/plan).
func webhookHandlers(cfg *config.Config, hub *chat.Hub) webhook.Handlers {
	return webhook.Handlers{
		SecondaryInbound: func(body []byte, sig string) {
			if !validSignature(cfg.Webhook.SharedSecret, body, sig) {
				log.Printf("steward: webhook signature mismatch, dropping payload")
				return
			}
			var payload struct {
				ChatID string `json:"chat_id"`
				From   string `json:"from"`
				Text   string `json:"text"`
			}
			if err := json.Unmarshal(body, &payload); err != nil {
				log.Printf("steward: webhook payload decode failed: %v", err)
				return
			}
			hub.In <- chat.Inbound{
				Channel:   "webhook",
				SenderID:  payload.From,
				ChatID:    payload.ChatID,
				Content:   payload.Text,
				Timestamp: time.Now(),
			}
		},
		Voice: func(path string, body []byte) string {
			if strings.HasSuffix(path, "/status") {
				log.Printf("steward: voice status callback: %s", string(body))
				return voice.TwiMLResponse("")
			}
			return voice.TwiMLResponse("This is steward. Reply by text for anything non-urgent.")
		},
	}
}

// unconfiguredRepoProvider satisfies plan.RepoProvider when no upstream
// repo host is wired: every operation fails clearly instead of the plan
// executor panicking on a nil interface.
type unconfiguredRepoProvider struct{}

func (unconfiguredRepoProvider) ReadFile(ctx context.Context, project, path string) (string, error) {
	return "", fmt.Errorf("no repo provider configured")
}

func (unconfiguredRepoProvider) CreateBranch(ctx context.Context, project, base, name string) error {
	return fmt.Errorf("no repo provider configured")
}

func (unconfiguredRepoProvider) CommitFiles(ctx context.Context, project, branch, message string, files map[string]string) error {
	return fmt.Errorf("no repo provider configured")
}

func (unconfiguredRepoProvider) CreatePR(ctx context.Context, project, branch, base, title, body string) (string, error) {
	return "", fmt.Errorf("no repo provider configured")
}

func (unconfiguredRepoProvider) DeleteBranch(ctx context.Context, project, branch string) error {
	return fmt.Errorf("no repo provider configured")
}

func validSignature(secret string, body []byte, sig string) bool {
	if secret == "" {
		return true
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.TrimPrefix(sig, "sha256=")))
}

func main() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
