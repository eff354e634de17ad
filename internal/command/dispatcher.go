package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"telegram-forwarder/internal/metrics"
)

// ErrUnauthorized is returned for commands from anyone but the administrator
var ErrUnauthorized = errors.New("caller is not the administrator")

// Command is one admin request as received from a chat or the HTTP API
type Command struct {
	Name   string
	Args   []string
	Caller int64
}

// Parse splits command text such as "/addsource news -1 -2" into a
// Command. It returns false when text is not a command.
func Parse(text string, caller int64) (Command, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return Command{}, false
	}

	name := strings.TrimPrefix(fields[0], "/")
	// "/list@my_bot" in group chats
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return Command{}, false
	}

	return Command{
		Name:   strings.ToLower(name),
		Args:   fields[1:],
		Caller: caller,
	}, true
}

const helpText = `Available commands:
/add <forward_name> <destination_id> - create a forwarding rule
/addsource <forward_name> <source_id_1> [source_id_2]... - add source chats to a rule
/delete <forward_name> - delete a rule
/list - show all rules
/login <bot_token> - set the forwarder credential
/logout - clear the forwarder credential
/status - show relay status
/help - show this message`

// Dispatcher checks the caller and routes commands to the processor
type Dispatcher struct {
	processor *Processor
	adminID   int64
	metrics   *metrics.Metrics
}

// NewDispatcher creates a dispatcher that only serves adminID
func NewDispatcher(processor *Processor, adminID int64, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		processor: processor,
		adminID:   adminID,
		metrics:   m,
	}
}

// Execute runs cmd and returns the reply for the caller. Commands from
// anyone but the administrator return ErrUnauthorized and no reply. For
// every other outcome the reply is non-empty and the returned error is the
// operation's error, if any.
func (d *Dispatcher) Execute(ctx context.Context, cmd Command) (string, error) {
	if cmd.Caller != d.adminID {
		logrus.WithFields(logrus.Fields{
			"caller":  cmd.Caller,
			"command": cmd.Name,
		}).Warn("Ignoring command from unauthorized caller")
		d.record(cmd.Name, "unauthorized")
		return "", ErrUnauthorized
	}

	reply, err := d.execute(ctx, cmd)

	result := "ok"
	if err != nil {
		result = "error"
		logrus.WithField("command", cmd.Name).WithError(err).Warn("Command failed")
	}
	d.record(cmd.Name, result)
	return reply, err
}

func (d *Dispatcher) execute(ctx context.Context, cmd Command) (string, error) {
	switch cmd.Name {
	case "add":
		if len(cmd.Args) != 2 {
			return "Usage: /add <forward_name> <destination_id>", nil
		}
		name := cmd.Args[0]
		if err := d.processor.AddRule(ctx, name, cmd.Args[1]); err != nil {
			return errorReply(err, name), err
		}
		return fmt.Sprintf("Forward '%s' created. Add sources with:\n/addsource %s <source_id>", name, name), nil

	case "addsource":
		if len(cmd.Args) < 2 {
			return "Usage: /addsource <forward_name> <source_id_1> [source_id_2]...", nil
		}
		name := cmd.Args[0]
		result, err := d.processor.AddSources(ctx, name, cmd.Args[1:])
		if err != nil {
			return errorReply(err, name), err
		}
		return addSourcesReply(name, result), nil

	case "delete":
		if len(cmd.Args) != 1 {
			return "Usage: /delete <forward_name>", nil
		}
		name := cmd.Args[0]
		if err := d.processor.DeleteRule(ctx, name); err != nil {
			return errorReply(err, name), err
		}
		return fmt.Sprintf("Forward '%s' has been deleted.", name), nil

	case "list":
		listing, err := d.processor.ListRules(ctx)
		if err != nil {
			return errorReply(err, ""), err
		}
		return listing, nil

	case "login":
		if len(cmd.Args) != 1 {
			return "Usage: /login <bot_token>", nil
		}
		if err := d.processor.Login(ctx, cmd.Args[0]); err != nil {
			return errorReply(err, ""), err
		}
		return "Login successful! The forwarder is starting.", nil

	case "logout":
		if err := d.processor.Logout(ctx); err != nil {
			return errorReply(err, ""), err
		}
		return "You have been successfully logged out. The forwarder will stop.\nUse /login to start again.", nil

	case "status":
		status, err := d.processor.Status(ctx)
		if err != nil {
			return errorReply(err, ""), err
		}
		return statusReply(status), nil

	default:
		return helpText, nil
	}
}

func (d *Dispatcher) record(command, result string) {
	if d.metrics == nil {
		return
	}
	d.metrics.Commands.WithLabelValues(command, result).Inc()
}

func errorReply(err error, name string) string {
	switch {
	case errors.Is(err, ErrEmptyName):
		return "Error: The forward name must not be empty."
	case errors.Is(err, ErrInvalidID):
		return "Error: Destination ID must be a number."
	case errors.Is(err, ErrDuplicateName):
		return fmt.Sprintf("Error: A forward with the name '%s' already exists.", name)
	case errors.Is(err, ErrRuleNotFound):
		return fmt.Sprintf("Error: No forward found with the name '%s'.", name)
	case errors.Is(err, ErrAlreadyLoggedIn):
		return "You are already logged in. Use /logout first if you want to switch accounts."
	case errors.Is(err, ErrEmptyCredential):
		return "Error: The credential must not be empty."
	case errors.Is(err, ErrNotLoggedIn):
		return "You are not logged in."
	case errors.Is(err, ErrStorage):
		return "Error: The forwarding rules could not be saved or loaded. Nothing was changed, please try again."
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}

func addSourcesReply(name string, result AddSourcesResult) string {
	var lines []string
	for _, token := range result.Invalid {
		lines = append(lines, fmt.Sprintf("Skipping invalid source ID: '%s'", token))
	}
	if result.NothingAdded() {
		lines = append(lines, "No new sources were added (either invalid or already exist).")
	} else {
		lines = append(lines, fmt.Sprintf("Added sources to '%s':\n%s", name, formatIDs(result.Added, "")))
	}
	return strings.Join(lines, "\n")
}

func statusReply(s Status) string {
	login := "not logged in"
	if s.LoggedIn {
		login = "logged in"
	}
	return fmt.Sprintf("Rules: %d\nSources: %d\nSnapshot version: %d\nForwarder: %s (%s)",
		s.Rules, s.Sources, s.Version, s.Forwarder, login)
}
