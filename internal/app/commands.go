package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"pmbot/internal/convstore"
	"pmbot/internal/llm"
	"pmbot/internal/projects"
	"pmbot/internal/transport"
	"pmbot/pkg/logx"
)

const helpText = `Commands:
/help - this message
/ping - liveness check
/status - bot status and next report time
/report - send the project report now (admin)
/mytasks - your open tasks
/link <email> - link your chat account to the project hub
/context - show remembered context; /context project=X task=Y user=Z topic=W to set
/reset - forget your conversation
/watch <owner/repo>, /unwatch <owner/repo> - manage PR polling (admin)
/map <github-user> <chat-id>, /unmap <github-user>, /mappings - review routing (admin)
/project create <name>, /projects - local projects
/task add <project> | <title>, /task status <id> <status>, /task assign <id> <user>
/enable <project>, /disable <project> - scope scheduled reports (admin)

Anything else is treated as a question about your projects.`

// updateLoop consumes the adapter's update channel and dispatches commands.
// Handlers run inline; the adapter keeps receiving while one is busy because
// the channel is buffered and overflow is dropped with a counter.
func (a *App) updateLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-a.updates:
			if !ok {
				return
			}
			if u.Message == nil || strings.TrimSpace(u.Message.Text) == "" {
				continue
			}
			a.handleMessage(ctx, u.Message)
		}
	}
}

func (a *App) handleMessage(ctx context.Context, msg *transport.Message) {
	text := strings.TrimSpace(msg.Text)
	reply := func(s string) {
		if s == "" {
			return
		}
		_, err := a.adapter.SendText(ctx, transport.ChatTarget{ChatID: msg.ChatID}, s, &transport.SendOptions{DisablePreview: true})
		if err != nil {
			a.log.Warn("reply failed", logx.Int64("chat", msg.ChatID), logx.Err(err))
		}
	}

	if !strings.HasPrefix(text, "/") {
		// Group chatter is ignored; free text only converses in DMs.
		if msg.IsGroup {
			return
		}
		reply(a.converse(ctx, msg, text))
		return
	}

	cmd, args := splitCommand(text)
	switch cmd {
	case "/start", "/help":
		reply(helpText)
	case "/ping":
		reply("pong")
	case "/status":
		reply(a.statusText())
	case "/report":
		if !a.isAdmin(msg.FromID) {
			reply("Admins only.")
			return
		}
		reply("Generating report...")
		a.runReport(ctx)
	case "/mytasks":
		reply(a.myTasks(ctx, msg.FromID))
	case "/link":
		reply(a.linkAccount(ctx, msg.FromID, args))
	case "/context":
		reply(a.contextCmd(ctx, msg, args))
	case "/reset":
		a.convs.Reset(ctx, userKey(msg.FromID))
		reply("Conversation cleared.")
	case "/watch":
		if !a.isAdmin(msg.FromID) {
			reply("Admins only.")
			return
		}
		repo := strings.TrimSpace(args)
		if !strings.Contains(repo, "/") {
			reply("Usage: /watch owner/repo")
			return
		}
		a.poll.Watch(repo)
		reply("Watching " + repo + " for merged PRs.")
	case "/unwatch":
		if !a.isAdmin(msg.FromID) {
			reply("Admins only.")
			return
		}
		if a.poll.Unwatch(strings.TrimSpace(args)) {
			reply("Stopped watching " + strings.TrimSpace(args) + ".")
		} else {
			reply("Not watching that repo.")
		}
	case "/map":
		if !a.isAdmin(msg.FromID) {
			reply("Admins only.")
			return
		}
		parts := strings.Fields(args)
		if len(parts) != 2 {
			reply("Usage: /map <github-user> <chat-id>")
			return
		}
		a.maps.Add(ctx, parts[0], parts[1])
		reply(fmt.Sprintf("Mapped %s -> %s.", parts[0], parts[1]))
	case "/unmap":
		if !a.isAdmin(msg.FromID) {
			reply("Admins only.")
			return
		}
		if a.maps.Remove(ctx, strings.TrimSpace(args)) {
			reply("Mapping removed.")
		} else {
			reply("No such mapping.")
		}
	case "/mappings":
		if !a.isAdmin(msg.FromID) {
			reply("Admins only.")
			return
		}
		reply(a.mappingsText())
	case "/project":
		reply(a.projectCmd(ctx, args))
	case "/projects":
		reply(a.projectsText())
	case "/task":
		reply(a.taskCmd(ctx, args))
	case "/enable", "/disable":
		if !a.isAdmin(msg.FromID) {
			reply("Admins only.")
			return
		}
		reply(a.toggleProject(ctx, cmd == "/enable", args))
	default:
		reply("Unknown command. /help lists what I understand.")
	}
}

// converse runs the full question pipeline: route to data sections, build
// the prompt with the user's trimmed history, call the model, remember both
// sides of the exchange.
func (a *App) converse(ctx context.Context, msg *transport.Message, question string) string {
	uk := userKey(msg.FromID)
	cc := a.convs.GetContext(uk)
	bundle := a.queries.Resolve(ctx, question, cc)

	hist := a.convs.History(uk)
	history := make([]llm.Message, 0, len(hist))
	for _, m := range hist {
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}

	answer, err := a.ai.Chat(ctx, llm.ConverseMessages(question, bundle.Format(), history), llm.ConverseOptions())
	if err != nil {
		a.log.Warn("LLM chat failed", logx.Err(err))
		// Degrade to the raw data so the question still gets something.
		if bundle.Empty() {
			return "I couldn't reach the language model and found no matching data."
		}
		return "The language model is unavailable; here is the raw data:\n\n" + bundle.Format()
	}

	a.convs.Append(ctx, uk, "user", question)
	a.convs.Append(ctx, uk, "assistant", answer)
	return answer
}

func (a *App) statusText() string {
	var sb strings.Builder
	sb.WriteString("📊 PM Bot status\n")
	fmt.Fprintf(&sb, "Uptime: %s\n", time.Since(a.startedAt).Round(time.Second))
	if h, m, ok := a.sched.NextRunIn(); ok {
		fmt.Fprintf(&sb, "Next report: in %dh %dm\n", h, m)
	} else {
		sb.WriteString("Next report: not scheduled\n")
	}
	repos := a.poll.Repos()
	if len(repos) > 0 {
		fmt.Fprintf(&sb, "Watching: %s\n", strings.Join(repos, ", "))
	} else {
		sb.WriteString("Watching: no repos\n")
	}
	if n := a.local.EnabledCount(); n > 0 {
		fmt.Fprintf(&sb, "Report scope: %d enabled project(s)\n", n)
	} else {
		sb.WriteString("Report scope: all active projects\n")
	}
	fmt.Fprintf(&sb, "User mappings: %d\n", len(a.maps.All()))
	return sb.String()
}

func (a *App) myTasks(ctx context.Context, userID int64) string {
	tasks, err := a.be.RecentTasks(ctx, 24*7)
	if err != nil {
		a.log.Warn("mytasks fetch failed", logx.Err(err))
		return "Couldn't reach the project hub, try again later."
	}
	uk := userKey(userID)
	var mine []string
	for _, t := range tasks {
		if t.Assignee.ChatID != uk || t.Status == "done" {
			continue
		}
		line := "- " + t.Title
		if t.DueDate != "" {
			line += " (due " + t.DueDate + ")"
		}
		mine = append(mine, line)
	}
	if len(mine) == 0 {
		return "No open tasks assigned to you. Use /link <email> if your account isn't linked yet."
	}
	return "Your open tasks:\n" + strings.Join(mine, "\n")
}

func (a *App) linkAccount(ctx context.Context, userID int64, args string) string {
	email := strings.TrimSpace(args)
	if email == "" || !strings.Contains(email, "@") {
		return "Usage: /link you@example.com"
	}
	if err := a.be.LinkAccount(ctx, userKey(userID), email); err != nil {
		a.log.Warn("account link failed", logx.Err(err))
		return "Linking failed, try again later."
	}
	return "Linked to " + email + "."
}

func (a *App) contextCmd(ctx context.Context, msg *transport.Message, args string) string {
	uk := userKey(msg.FromID)
	if strings.TrimSpace(args) == "" {
		cc := a.convs.GetContext(uk)
		if cc == (convstore.Context{}) {
			return "No context remembered. Set one with /context project=X."
		}
		var parts []string
		if cc.Project != "" {
			parts = append(parts, "project="+cc.Project)
		}
		if cc.Task != "" {
			parts = append(parts, "task="+cc.Task)
		}
		if cc.User != "" {
			parts = append(parts, "user="+cc.User)
		}
		if cc.Topic != "" {
			parts = append(parts, "topic="+cc.Topic)
		}
		return "Current context: " + strings.Join(parts, ", ")
	}

	var upd convstore.ContextUpdate
	for _, field := range strings.Fields(args) {
		k, v, ok := strings.Cut(field, "=")
		if !ok {
			return "Usage: /context project=X task=Y user=Z topic=W"
		}
		v = strings.TrimSpace(v)
		switch strings.ToLower(k) {
		case "project":
			upd.Project = &v
		case "task":
			upd.Task = &v
		case "user":
			upd.User = &v
		case "topic":
			upd.Topic = &v
		default:
			return "Unknown context field " + k + "."
		}
	}
	a.convs.UpdateContext(ctx, uk, upd)
	return "Context updated."
}

func (a *App) mappingsText() string {
	all := a.maps.All()
	if len(all) == 0 {
		return "No user mappings."
	}
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	var sb strings.Builder
	sb.WriteString("User mappings:\n")
	for _, name := range names {
		fmt.Fprintf(&sb, "- %s -> %s\n", name, all[name])
	}
	return sb.String()
}

func (a *App) projectCmd(ctx context.Context, args string) string {
	sub, rest := splitCommand(args)
	switch sub {
	case "create":
		name := strings.TrimSpace(rest)
		if name == "" {
			return "Usage: /project create <name>"
		}
		p := a.local.CreateProject(ctx, name, "")
		return fmt.Sprintf("Created project %q (%s).", p.Name, p.ID)
	default:
		return "Usage: /project create <name>"
	}
}

func (a *App) projectsText() string {
	ps := a.local.Projects()
	if len(ps) == 0 {
		return "No local projects. Create one with /project create <name>."
	}
	var sb strings.Builder
	sb.WriteString("Local projects:\n")
	for _, p := range ps {
		open := 0
		for _, t := range p.Tasks {
			if t.Status != projects.StatusDone {
				open++
			}
		}
		fmt.Fprintf(&sb, "- %s (%d tasks, %d open)\n", p.Name, len(p.Tasks), open)
	}
	return sb.String()
}

func (a *App) taskCmd(ctx context.Context, args string) string {
	sub, rest := splitCommand(args)
	switch sub {
	case "add":
		// The project name may contain spaces, so the title is separated
		// with a pipe: /task add Website Redesign | Fix the navbar
		projName, title, ok := strings.Cut(rest, "|")
		if !ok || strings.TrimSpace(title) == "" {
			return "Usage: /task add <project> | <title>"
		}
		p := a.local.ProjectByName(strings.TrimSpace(projName))
		if p == nil {
			return "No local project named " + strings.TrimSpace(projName) + "."
		}
		t := a.local.AddTask(ctx, p.ID, strings.TrimSpace(title), "", "")
		return fmt.Sprintf("Added task %q (%s) to %s.", t.Title, t.ID, p.Name)
	case "status":
		parts := strings.Fields(rest)
		if len(parts) != 2 {
			return "Usage: /task status <id> todo|in_progress|done"
		}
		switch parts[1] {
		case projects.StatusTodo, projects.StatusInProgress, projects.StatusDone:
		default:
			return "Status must be todo, in_progress or done."
		}
		if !a.local.SetTaskStatus(ctx, parts[0], parts[1]) {
			return "No task with id " + parts[0] + "."
		}
		return "Task updated."
	case "assign":
		parts := strings.Fields(rest)
		if len(parts) != 2 {
			return "Usage: /task assign <id> <user>"
		}
		if !a.local.AssignTask(ctx, parts[0], parts[1]) {
			return "No task with id " + parts[0] + "."
		}
		return "Task assigned to " + parts[1] + "."
	default:
		return "Usage: /task add|status|assign ..."
	}
}

// toggleProject scopes the scheduled report by backend project name.
func (a *App) toggleProject(ctx context.Context, enable bool, args string) string {
	name := strings.TrimSpace(args)
	if name == "" {
		return "Usage: /enable <project> or /disable <project>"
	}
	ps, err := a.be.ActiveProjects(ctx)
	if err != nil {
		a.log.Warn("project lookup failed", logx.Err(err))
		return "Couldn't reach the project hub, try again later."
	}
	for _, p := range ps {
		if strings.EqualFold(p.Name, name) {
			if enable {
				a.local.Enable(ctx, p.ID())
				return p.Name + " will be included in scheduled reports."
			}
			if a.local.Disable(ctx, p.ID()) {
				return p.Name + " removed from the report scope."
			}
			return p.Name + " wasn't in the report scope."
		}
	}
	return "No active project named " + name + "."
}

func (a *App) isAdmin(userID int64) bool {
	cfg := a.cfgm.Get()
	if cfg == nil {
		return false
	}
	for _, id := range cfg.Telegram.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func splitCommand(text string) (cmd, args string) {
	cmd, args, _ = strings.Cut(strings.TrimSpace(text), " ")
	// Strip the bot-name suffix Telegram appends in groups (/status@pm_bot).
	if i := strings.Index(cmd, "@"); i > 0 {
		cmd = cmd[:i]
	}
	return cmd, strings.TrimSpace(args)
}

func userKey(id int64) string {
	return fmt.Sprint(id)
}
