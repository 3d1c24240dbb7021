package builtin

import (
	"context"
	"errors"
	"io/fs"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"Jarvis-Orchestrator/internal/agent"
	xerrors "Jarvis-Orchestrator/internal/errors"
	"Jarvis-Orchestrator/internal/intent"
)

const (
	defaultStreamQuery = "popular music"
	// DefaultYouTubeURL 是 YouTube 搜索入口。
	DefaultYouTubeURL = "https://www.youtube.com/results"
)

var audioExtensions = map[string]struct{}{
	".mp3": {}, ".wav": {}, ".m4a": {}, ".flac": {}, ".ogg": {},
}

// StreamSource 将查询转换为可播放的流媒体地址。
type StreamSource interface {
	Name() string
	SearchURL(query string) (string, error)
}

// YouTube 生成 YouTube 搜索结果地址。
type YouTube struct {
	BaseURL string
}

func (YouTube) Name() string { return "youtube" }

// SearchURL 实现 StreamSource。
func (y YouTube) SearchURL(query string) (string, error) {
	base := y.BaseURL
	if base == "" {
		base = DefaultYouTubeURL
	}
	return base + "?search_query=" + url.QueryEscape(query), nil
}

// Playback 是一次正在进行的播放。
type Playback interface {
	Stop() error
}

// Player 启动本地曲目播放。
type Player interface {
	Start(ctx context.Context, path string) (Playback, error)
}

// CommandPlayer 通过外部命令播放，曲目路径追加在参数末尾。
type CommandPlayer struct {
	Command []string
}

type processPlayback struct {
	cmd *exec.Cmd
}

func (p processPlayback) Stop() error {
	if p.cmd.Process == nil {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	_ = p.cmd.Wait()
	return nil
}

// Start 实现 Player。
func (c CommandPlayer) Start(_ context.Context, path string) (Playback, error) {
	if len(c.Command) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未配置播放器命令")
	}
	args := append(append([]string(nil), c.Command[1:]...), path)
	cmd := exec.Command(c.Command[0], args...)
	if err := cmd.Start(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeProviderFault, err, "启动播放器失败")
	}
	return processPlayback{cmd: cmd}, nil
}

// Music 先搜索本地曲库，再按顺序回退到流媒体源。
type Music struct {
	dir     string
	sources []StreamSource
	player  Player

	mu      sync.Mutex
	playing []Playback
}

// MusicOption 定义可选配置。
type MusicOption func(*Music)

// WithStreamSources 替换流媒体源，按给定顺序回退。
func WithStreamSources(sources ...StreamSource) MusicOption {
	return func(m *Music) {
		m.sources = append([]StreamSource(nil), sources...)
	}
}

// WithPlayer 指定本地播放器。
func WithPlayer(p Player) MusicOption {
	return func(m *Music) {
		m.player = p
	}
}

// NewMusic 创建 music_agent，默认流媒体源为 YouTube。
func NewMusic(dir string, opts ...MusicOption) *Music {
	m := &Music{dir: dir, sources: []StreamSource{YouTube{}}}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

func (m *Music) Name() string { return "music_agent" }

// CanHandle 识别 play 与 play_music。
func (m *Music) CanHandle(in intent.Intent) (bool, error) {
	return in.Name == "play" || in.Name == "play_music", nil
}

// Perform 实现 agent.Performer。
func (m *Music) Perform(ctx context.Context, in intent.Intent) agent.Outcome {
	query := in.Entity("query")
	if query == "" {
		query = in.Text
	}
	preferLocal := true
	if v, ok := in.Entities["prefer_local"].(bool); ok {
		preferLocal = v
	}
	res, err := m.play(ctx, query, preferLocal)
	if err != nil {
		return agent.Fail(xerrors.MessageOf(err))
	}
	return agent.Outcome{OK: true, Details: res}
}

// Execute 支持 play 与 stop。
func (m *Music) Execute(ctx context.Context, action string, args map[string]any) (map[string]any, error) {
	switch action {
	case "play":
		query := stringArg(args, "query")
		if query == "" {
			query = entityArg(args, "query")
		}
		if query == "" {
			query = stringArg(args, "text")
		}
		preferLocal := true
		if v, ok := args["prefer_local"].(bool); ok {
			preferLocal = v
		}
		return m.play(ctx, query, preferLocal)
	case "stop":
		return map[string]any{"status": "stopped", "count": m.stopAll()}, nil
	default:
		return nil, agent.UnknownAction(action)
	}
}

func (m *Music) play(ctx context.Context, query string, preferLocal bool) (map[string]any, error) {
	if preferLocal {
		if tracks := m.findLocal(query); len(tracks) > 0 {
			track := tracks[0]
			res := map[string]any{"status": "playing", "source": "local", "track": track}
			if m.player == nil {
				res["note"] = "no_player_cmd"
				return res, nil
			}
			pb, err := m.player.Start(ctx, track)
			if err != nil {
				return nil, err
			}
			m.mu.Lock()
			m.playing = append(m.playing, pb)
			m.mu.Unlock()
			return res, nil
		}
	}

	q := query
	if q == "" {
		q = defaultStreamQuery
	}
	for _, src := range m.sources {
		link, err := src.SearchURL(q)
		if err != nil || link == "" {
			continue
		}
		return map[string]any{
			"status":   "fallback",
			"source":   "streaming",
			"query":    query,
			"url":      link,
			"provider": src.Name(),
		}, nil
	}
	return nil, xerrors.New(xerrors.CodeProviderFault, "no_playback_available")
}

// findLocal 返回文件名包含查询词的音频文件，空查询匹配全部，结果按路径排序。
func (m *Music) findLocal(query string) []string {
	if m.dir == "" {
		return nil
	}
	if info, err := os.Stat(m.dir); err != nil || !info.IsDir() {
		return nil
	}
	q := strings.ToLower(strings.TrimSpace(query))
	var tracks []string
	_ = filepath.WalkDir(m.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		name := strings.ToLower(d.Name())
		if _, ok := audioExtensions[filepath.Ext(name)]; !ok {
			return nil
		}
		if q == "" || strings.Contains(name, q) {
			tracks = append(tracks, path)
		}
		return nil
	})
	sort.Strings(tracks)
	return tracks
}

func (m *Music) stopAll() int {
	m.mu.Lock()
	playing := m.playing
	m.playing = nil
	m.mu.Unlock()

	stopped := 0
	for _, pb := range playing {
		if err := pb.Stop(); err == nil {
			stopped++
		}
	}
	return stopped
}
