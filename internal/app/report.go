package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pmbot/internal/backend"
	"pmbot/internal/transport"
	"pmbot/pkg/logx"
)

// runReport builds and sends the scheduled project report. One project's
// fetch failure is reported inline and never aborts the remaining projects.
func (a *App) runReport(ctx context.Context) {
	cfg := a.cfgm.Get()
	if cfg.Telegram.ReportChatID == 0 {
		a.log.Warn("report due but telegram.report_chat_id is not configured")
		return
	}
	lookback := cfg.Reports.LookbackHours
	if lookback <= 0 {
		lookback = 12
	}

	all, err := a.be.ActiveProjects(ctx)
	if err != nil {
		a.log.Error("report aborted: project list unavailable", logx.Err(err))
		a.sendReport(ctx, cfg.Telegram.ReportChatID,
			"⚠️ Scheduled report could not be generated: the project hub is unreachable.")
		return
	}

	// An empty enabled set means report on everything active.
	selected := all
	if a.local.EnabledCount() > 0 {
		selected = selected[:0]
		for _, p := range all {
			if a.local.IsEnabled(p.ID()) {
				selected = append(selected, p)
			}
		}
	}
	if len(selected) == 0 {
		a.sendReport(ctx, cfg.Telegram.ReportChatID, "📋 Project report: no active projects.")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 Project report, last %dh\n", lookback)
	for _, p := range selected {
		sb.WriteString("\n")
		sb.WriteString(a.projectSection(ctx, p, lookback))
	}
	a.sendReport(ctx, cfg.Telegram.ReportChatID, sb.String())
}

func (a *App) projectSection(ctx context.Context, p backend.Project, lookback int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "▸ %s", p.Name)
	if p.Status != "" {
		fmt.Fprintf(&sb, " [%s]", p.Status)
	}
	sb.WriteString("\n")

	stats, err := a.be.UserStats(ctx, p.ID(), lookback)
	if err != nil {
		a.log.Warn("report: stats unavailable", logx.String("project", p.Name), logx.Err(err))
		sb.WriteString("  ⚠️ activity data unavailable\n")
	} else if len(stats) > 0 {
		for _, s := range stats {
			fmt.Fprintf(&sb, "  %s: %d completed\n", s.UserName, s.Completed)
		}
	} else {
		sb.WriteString("  no completed tasks\n")
	}

	pending, err := a.be.IncompleteTasks(ctx, p.ID())
	if err != nil {
		a.log.Warn("report: pending tasks unavailable", logx.String("project", p.Name), logx.Err(err))
		sb.WriteString("  ⚠️ pending tasks unavailable\n")
	} else if len(pending) > 0 {
		fmt.Fprintf(&sb, "  %d pending task(s):\n", len(pending))
		for i, t := range pending {
			if i == 5 {
				fmt.Fprintf(&sb, "    ... and %d more\n", len(pending)-i)
				break
			}
			line := "    - " + t.Title
			if t.Assignee.Name != "" {
				line += " (" + t.Assignee.Name + ")"
			}
			sb.WriteString(line + "\n")
		}
	}

	commits, err := a.be.RecentCommits(ctx, p.ID(), lookback)
	if err != nil {
		a.log.Warn("report: commits unavailable", logx.String("project", p.Name), logx.Err(err))
	} else if len(commits) > 0 {
		fmt.Fprintf(&sb, "  %d commit(s):\n", len(commits))
		for i, c := range commits {
			if i == 5 {
				fmt.Fprintf(&sb, "    ... and %d more\n", len(commits)-i)
				break
			}
			subject, _, _ := strings.Cut(c.Message, "\n")
			fmt.Fprintf(&sb, "    - %s", subject)
			if c.Author != "" {
				fmt.Fprintf(&sb, " (%s)", c.Author)
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func (a *App) sendReport(ctx context.Context, chatID int64, text string) {
	sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := a.adapter.SendText(sendCtx, transport.ChatTarget{ChatID: chatID}, text, &transport.SendOptions{DisablePreview: true}); err != nil {
		a.log.Error("report delivery failed", logx.Int64("chat", chatID), logx.Err(err))
		return
	}
	a.log.Info("report delivered", logx.Int64("chat", chatID))
}
