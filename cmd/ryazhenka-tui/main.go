// ryazhenka-tui is a full-screen terminal client for the Ryazhenka global
// chat service. It reuses the identity stored by the ryazhenka CLI under
// ~/.ryazhenka/config.toml.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"

	ryazhenka "github.com/ryazhenka-chat/ryazhenka-go"
)

// Global program reference so engine event handlers can inject tea messages.
var (
	programRef *tea.Program
	programMu  sync.Mutex
)

// tuiConfig mirrors the CLI's config file layout.
type tuiConfig struct {
	Default struct {
		BaseURL  string `toml:"base_url"`
		Platform string `toml:"platform"`
	} `toml:"default"`
	Auth struct {
		DisplayName string `toml:"display_name"`
		UserID      string `toml:"user_id"`
	} `toml:"auth"`
}

func loadTUIConfig() (*tuiConfig, string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".ryazhenka")
	var cfg tuiConfig
	data, err := os.ReadFile(filepath.Join(dir, "config.toml"))
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, dir, nil
		}
		return nil, "", fmt.Errorf("cannot read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, "", fmt.Errorf("cannot parse config: %w", err)
	}
	return &cfg, dir, nil
}

func main() {
	_ = godotenv.Load()

	cfg, dir, err := loadTUIConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	displayName := cfg.Auth.DisplayName
	if len(os.Args) > 1 {
		displayName = os.Args[1]
	}
	if displayName == "" {
		fmt.Fprintln(os.Stderr, "No identity configured. Run 'ryazhenka register <display-name>' or pass a name: ryazhenka-tui <display-name>")
		os.Exit(1)
	}

	var opts []ryazhenka.ClientOption
	baseURL := cfg.Default.BaseURL
	if env := os.Getenv("RYAZHENKA_BASE_URL"); env != "" {
		baseURL = env
	}
	if baseURL != "" {
		opts = append(opts, ryazhenka.WithBaseURL(baseURL))
	}
	if cfg.Default.Platform != "" {
		opts = append(opts, ryazhenka.WithPlatform(cfg.Default.Platform))
	}

	engine := ryazhenka.NewEngine(ryazhenka.NewClient(opts...), &ryazhenka.EngineOptions{
		DeviceIDDir: dir,
	})
	defer engine.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = engine.Register(ctx, displayName)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Login failed (%s): %v\n", ryazhenka.StatusText(err), err)
		os.Exit(1)
	}

	session, _ := engine.Session()
	m := newModel(engine, session)

	p := tea.NewProgram(m, tea.WithAltScreen())

	programMu.Lock()
	programRef = p
	programMu.Unlock()

	// Engine events arrive on engine goroutines; bounce them into the
	// program's message loop.
	forward := func(msg tea.Msg) {
		programMu.Lock()
		prog := programRef
		programMu.Unlock()
		if prog != nil {
			prog.Send(msg)
		}
	}
	engine.On(ryazhenka.EventSyncComplete, func(_ string, payload any) {
		online := 0
		if p, ok := payload.(map[string]any); ok {
			if n, ok := p["online"].(int); ok {
				online = n
			}
		}
		forward(syncCompleteMsg{online: online})
	})
	engine.On(ryazhenka.EventSyncError, func(_ string, payload any) {
		forward(syncErrorMsg{status: fmt.Sprint(payload)})
	})
	engine.On(ryazhenka.EventMessageSent, func(_ string, _ any) {
		forward(deliveryChangedMsg{})
	})
	engine.On(ryazhenka.EventMessageConfirmed, func(_ string, _ any) {
		forward(deliveryChangedMsg{})
	})
	engine.On(ryazhenka.EventMessageFailed, func(_ string, payload any) {
		reason := ""
		if p, ok := payload.(map[string]any); ok {
			reason = fmt.Sprint(p["error"])
		}
		forward(deliveryFailedMsg{reason: reason})
	})

	engine.RequestRefresh()

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
