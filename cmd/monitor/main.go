// monitor 是 jitter 的终端监控面板：轮询控制面展示引擎状态、
// 市场包络和最近成交，支持一键暂停/恢复。
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-resty/resty/v2"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("2")) // 绿色

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1")) // 红色

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

type envelopeView struct {
	Market      string `json:"market"`
	MaxPosition int64  `json:"max_position"`
	MinPosition int64  `json:"min_position"`
	Bid         int64  `json:"bid"`
	Ask         int64  `json:"ask"`
	PriceKind   string `json:"price_kind"`
	PostOnly    string `json:"post_only"`
}

type statusView struct {
	Paused         bool           `json:"paused"`
	InFlight       int            `json:"in_flight"`
	TradingAllowed bool           `json:"trading_allowed"`
	HaltReason     string         `json:"halt_reason"`
	Envelopes      []envelopeView `json:"envelopes"`
}

type fillView struct {
	AuctionKey string `json:"auction_key"`
	Market     string `json:"market"`
	Side       string `json:"side"`
	Result     string `json:"result"`
	Attempts   int    `json:"attempts"`
	Signature  string `json:"signature"`
	Error      string `json:"error"`
	Timestamp  string `json:"ts"`
}

// tickMsg 定时器消息
type tickMsg time.Time

// statusMsg 一次轮询结果
type statusMsg struct {
	status statusView
	fills  []fillView
	err    error
}

type model struct {
	api *resty.Client

	status statusView
	fills  []fillView
	err    error
	polled bool
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) poll() tea.Cmd {
	return func() tea.Msg {
		var out statusMsg
		if _, err := m.api.R().SetResult(&out.status).Get("/v1/status"); err != nil {
			out.err = err
			return out
		}
		if _, err := m.api.R().SetResult(&out.fills).Get("/v1/fills?limit=15"); err != nil {
			out.err = err
		}
		return out
	}
}

func (m model) toggle() tea.Cmd {
	path := "/v1/pause"
	if m.status.Paused {
		path = "/v1/resume"
	}
	return func() tea.Msg {
		_, _ = m.api.R().Post(path)
		return tickMsg(time.Now())
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.poll(), tick())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "p":
			return m, m.toggle()
		}
	case tickMsg:
		return m, tea.Batch(m.poll(), tick())
	case statusMsg:
		m.polled = true
		m.err = msg.err
		if msg.err == nil {
			m.status = msg.status
			m.fills = msg.fills
		}
	}
	return m, nil
}

// fp 定点数转小数显示
func fp(v int64, precision int64) string {
	return fmt.Sprintf("%.4f", float64(v)/float64(precision))
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("jitter monitor"))
	b.WriteString("\n\n")

	if !m.polled {
		b.WriteString(dimStyle.Render("connecting..."))
		b.WriteString("\n")
		return b.String()
	}
	if m.err != nil {
		b.WriteString(warnStyle.Render(fmt.Sprintf("control plane unreachable: %v", m.err)))
		b.WriteString("\n\n")
		b.WriteString(dimStyle.Render("q: quit"))
		b.WriteString("\n")
		return b.String()
	}

	// 引擎状态
	state := okStyle.Render("RUNNING")
	if m.status.Paused {
		state = warnStyle.Render("PAUSED")
	}
	trading := okStyle.Render("allowed")
	if !m.status.TradingAllowed {
		trading = warnStyle.Render("halted: " + m.status.HaltReason)
	}
	statusBlock := fmt.Sprintf("%s  in-flight: %d  trading: %s", state, m.status.InFlight, trading)
	b.WriteString(borderStyle.Render(statusBlock))
	b.WriteString("\n\n")

	// 市场包络
	b.WriteString(titleStyle.Render("envelopes"))
	b.WriteString("\n")
	if len(m.status.Envelopes) == 0 {
		b.WriteString(dimStyle.Render("  (none configured)"))
		b.WriteString("\n")
	}
	for _, e := range m.status.Envelopes {
		line := fmt.Sprintf("  %-10s pos [%s, %s]  bid %s  ask %s  %s",
			e.Market,
			fp(e.MinPosition, 1_000_000_000), fp(e.MaxPosition, 1_000_000_000),
			fp(e.Bid, 1_000_000), fp(e.Ask, 1_000_000),
			e.PriceKind)
		if e.PostOnly != "none" {
			line += "  post-only:" + e.PostOnly
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	// 最近成交
	b.WriteString(titleStyle.Render("recent auctions"))
	b.WriteString("\n")
	if len(m.fills) == 0 {
		b.WriteString(dimStyle.Render("  (no records)"))
		b.WriteString("\n")
	}
	for _, f := range m.fills {
		result := dimStyle.Render(f.Result)
		switch f.Result {
		case "filled":
			result = okStyle.Render(f.Result)
		case "aborted":
			result = warnStyle.Render(f.Result)
		}
		line := fmt.Sprintf("  %-8s %-10s %-6s attempts:%d  %s",
			result, f.Market, f.Side, f.Attempts, shorten(f.Signature, 16))
		if f.Error != "" {
			line += "  " + dimStyle.Render(shorten(f.Error, 40))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render("q: quit  p: pause/resume"))
	b.WriteString("\n")
	return b.String()
}

func shorten(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func main() {
	addr := flag.String("addr", "http://127.0.0.1:8787", "控制面地址")
	flag.Parse()

	api := resty.New().
		SetBaseURL(strings.TrimSuffix(*addr, "/")).
		SetTimeout(2 * time.Second)

	p := tea.NewProgram(model{api: api})
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "monitor 运行失败: %v\n", err)
		os.Exit(1)
	}
}
