package builtin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"Jarvis-Orchestrator/internal/agent"
	xerrors "Jarvis-Orchestrator/internal/errors"
	"Jarvis-Orchestrator/internal/handoff"
	"Jarvis-Orchestrator/internal/intent"
	"Jarvis-Orchestrator/internal/web3"
)

type scriptedApprover struct {
	answers []bool
	asked   []string
}

func (s *scriptedApprover) RequestApproval(_ context.Context, message string) bool {
	s.asked = append(s.asked, message)
	if len(s.answers) == 0 {
		return false
	}
	next := s.answers[0]
	s.answers = s.answers[1:]
	return next
}

type recordingRunner struct {
	commands []string
	err      error
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) error {
	r.commands = append(r.commands, strings.Join(append([]string{name}, args...), " "))
	return r.err
}

func TestSimpleProviders(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	out, err := Network{}.Execute(ctx, "status", nil)
	if err != nil || out["network"] != "ok" || out["latency_ms"] != 12 {
		t.Fatalf("unexpected network status %v, %v", out, err)
	}
	if _, err := (Power{}).Execute(ctx, "hibernate", nil); xerrors.CodeOf(err) != agent.CodeUnknownAction {
		t.Fatalf("expected unknown action, got %v", err)
	}
	out, err = Noop{}.Execute(ctx, "ping", map[string]any{"x": 1})
	if err != nil || out["action"] != "ping" || !reflect.DeepEqual(out["args"], map[string]any{"x": 1}) {
		t.Fatalf("unexpected noop output %v, %v", out, err)
	}
	out, err = App{}.Execute(ctx, "open", map[string]any{"entities": map[string]any{"app": "terminal"}})
	if err != nil || out["opened"] != "terminal" {
		t.Fatalf("unexpected app output %v, %v", out, err)
	}
	out, err = Search{}.Execute(ctx, "search", map[string]any{"q": "go generics"})
	if err != nil || out["url"] != "https://duckduckgo.com/?q=go+generics" {
		t.Fatalf("unexpected search output %v, %v", out, err)
	}
}

func TestWifiSharesRadioWithSystemAgent(t *testing.T) {
	t.Parallel()

	radio := NewRadio(false)
	wifi := NewWifi(radio)
	sys := NewSystem(&scriptedApprover{}, &recordingRunner{}, radio)

	out, err := wifi.Execute(context.Background(), "toggle", nil)
	if err != nil || out["enabled"] != true {
		t.Fatalf("unexpected toggle output %v, %v", out, err)
	}
	if pre := sys.CheckPrecondition(context.Background(), intent.Intent{Name: "enable_wifi"}); !pre.OK {
		t.Fatalf("radio on should satisfy precondition, got %+v", pre)
	}
	radio.Set(false)
	pre := sys.CheckPrecondition(context.Background(), intent.Intent{Name: "enable_wifi"})
	if pre.OK || pre.Requires == nil || pre.Requires.Agent != "system_agent" || pre.Requires.Intent.Name != "enable_wifi" {
		t.Fatalf("unexpected precondition %+v", pre)
	}
}

func TestSystemAgentRequiresApproval(t *testing.T) {
	t.Parallel()

	runner := &recordingRunner{}
	approver := &scriptedApprover{answers: []bool{false, true}}
	sys := NewSystem(approver, runner, nil)

	out := sys.Perform(context.Background(), intent.Intent{Name: "shutdown"})
	if out.OK || out.Message != "Shutdown cancelled" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(runner.commands) != 0 {
		t.Fatalf("denied action must not run commands: %v", runner.commands)
	}

	out = sys.Perform(context.Background(), intent.Intent{Name: "shutdown"})
	if !out.OK || out.Message != "Shutting down" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if !reflect.DeepEqual(runner.commands, []string{"systemctl poweroff"}) {
		t.Fatalf("unexpected commands %v", runner.commands)
	}
	if approver.asked[0] != "Confirm shutdown of this machine?" {
		t.Fatalf("unexpected prompt %q", approver.asked[0])
	}

	if _, err := sys.Execute(context.Background(), "reboot", nil); xerrors.CodeOf(err) != xerrors.CodeProviderFault {
		t.Fatalf("denied execute should fault, got %v", err)
	}
	if _, err := sys.Execute(context.Background(), "format_disk", nil); xerrors.CodeOf(err) != agent.CodeUnknownAction {
		t.Fatalf("expected unknown action, got %v", err)
	}

	failing := NewSystem(&scriptedApprover{answers: []bool{true}}, &recordingRunner{err: errors.New("nmcli missing")}, nil)
	if out := failing.Perform(context.Background(), intent.Intent{Name: "disable_wifi"}); out.OK || out.Message != "nmcli missing" {
		t.Fatalf("runner failure should surface, got %+v", out)
	}
}

func TestEnableWifiHandoffRunsHelperFirst(t *testing.T) {
	t.Parallel()

	radio := NewRadio(false)
	runner := &recordingRunner{}
	approver := &scriptedApprover{answers: []bool{true, true}}
	reg := agent.NewRegistry(NewWifi(radio), NewSystem(approver, runner, radio))

	out := handoff.New(reg).Handle(context.Background(), intent.Intent{Name: "enable_wifi"})
	if !out.OK || out.Message != "WiFi enabled" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if !radio.Enabled() {
		t.Fatalf("radio should be on")
	}
	if len(approver.asked) != 2 {
		t.Fatalf("helper and main perform should each ask, got %v", approver.asked)
	}

	radio.Set(false)
	denying := agent.NewRegistry(NewSystem(&scriptedApprover{}, runner, radio))
	out = handoff.New(denying).Handle(context.Background(), intent.Intent{Name: "enable_wifi"})
	if out.OK || out.Message != "failed_prereq:User denied enabling WiFi" {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

type fakePlayer struct {
	started []string
	stops   int
}

type fakePlayback struct{ p *fakePlayer }

func (f fakePlayback) Stop() error {
	f.p.stops++
	return nil
}

func (f *fakePlayer) Start(_ context.Context, path string) (Playback, error) {
	f.started = append(f.started, path)
	return fakePlayback{p: f}, nil
}

func writeTracks(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return dir
}

func TestMusicPrefersLocalLibrary(t *testing.T) {
	t.Parallel()

	dir := writeTracks(t, "jazz/Blue_Jazz.mp3", "notes_jazz.txt", "rock.flac")
	player := &fakePlayer{}
	m := NewMusic(dir, WithPlayer(player))

	out, err := m.Execute(context.Background(), "play", map[string]any{"query": "JAZZ"})
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	want := filepath.Join(dir, "jazz", "Blue_Jazz.mp3")
	if out["source"] != "local" || out["track"] != want {
		t.Fatalf("unexpected output %v", out)
	}
	if len(player.started) != 1 || player.started[0] != want {
		t.Fatalf("player not started: %v", player.started)
	}

	out, err = m.Execute(context.Background(), "stop", nil)
	if err != nil || out["count"] != 1 || player.stops != 1 {
		t.Fatalf("unexpected stop output %v, %v", out, err)
	}

	noPlayer := NewMusic(dir)
	out, _ = noPlayer.Execute(context.Background(), "play", map[string]any{"entities": map[string]any{"query": "rock"}})
	if out["note"] != "no_player_cmd" || out["track"] != filepath.Join(dir, "rock.flac") {
		t.Fatalf("unexpected output %v", out)
	}
}

type brokenSource struct{}

func (brokenSource) Name() string { return "broken" }

func (brokenSource) SearchURL(string) (string, error) { return "", errors.New("offline") }

func TestMusicFallsBackToStreamSources(t *testing.T) {
	t.Parallel()

	m := NewMusic(t.TempDir(), WithStreamSources(brokenSource{}, YouTube{}))
	out, err := m.Execute(context.Background(), "play", map[string]any{"query": "lofi beats"})
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if out["provider"] != "youtube" || out["url"] != "https://www.youtube.com/results?search_query=lofi+beats" {
		t.Fatalf("unexpected output %v", out)
	}

	outcome := m.Perform(context.Background(), intent.Intent{Name: "play_music"})
	if !outcome.OK || outcome.Details["url"] != "https://www.youtube.com/results?search_query=popular+music" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}

	silent := NewMusic("", WithStreamSources())
	if out := silent.Perform(context.Background(), intent.Intent{Name: "play", Text: "x"}); out.OK || out.Message != "no_playback_available" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if ok, _ := silent.CanHandle(intent.Intent{Name: "play_music"}); !ok {
		t.Fatalf("music agent should handle play_music")
	}
}

type fakeChain struct {
	err error
}

func (f fakeChain) FetchChainSnapshot(context.Context) (web3.ChainSnapshot, error) {
	return web3.ChainSnapshot{ChainID: "0x1", BlockNumber: "0x10"}, f.err
}

func (f fakeChain) Balance(_ context.Context, address string) (string, error) {
	return "0x64", f.err
}

func (f fakeChain) Nonce(context.Context, string) (string, error) { return "0x2", f.err }

func (fakeChain) Close() {}

func TestLedgerAgent(t *testing.T) {
	t.Parallel()

	l := NewLedger(fakeChain{})
	out, err := l.Execute(context.Background(), "status", nil)
	if err != nil || out["chain_id"] != "0x1" || out["block_number"] != "0x10" {
		t.Fatalf("unexpected status %v, %v", out, err)
	}
	out, err = l.Execute(context.Background(), "balance", map[string]any{"address": "0xabc"})
	if err != nil || out["balance"] != "0x64" || out["address"] != "0xabc" {
		t.Fatalf("unexpected balance %v, %v", out, err)
	}

	broken := NewLedger(fakeChain{err: errors.New("rpc down")})
	if _, err := broken.Execute(context.Background(), "status", nil); xerrors.CodeOf(err) != xerrors.CodeProviderFault {
		t.Fatalf("expected provider fault, got %v", err)
	}
	if _, err := NewLedger(nil).Execute(context.Background(), "status", nil); err == nil {
		t.Fatalf("missing client should fail")
	}
}

func TestProvidersRegistrationOrder(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(Deps{})
	want := []string{"noop_agent", "wifi_agent", "network_agent", "power_agent", "app_agent", "search_agent", "system_agent", "music_agent"}
	if got := reg.Names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected names %v", got)
	}
	if reg.Priority("system_agent") != 10 {
		t.Fatalf("system agent priority not exposed")
	}
	if NewRegistry(Deps{LedgerChain: fakeChain{}}).Has("chain_agent") != true {
		t.Fatalf("ledger agent should be registered when a chain client is provided")
	}
}
