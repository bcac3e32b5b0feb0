// Command funnel walks a seller through the cash offer funnel from a
// terminal. Answers are kept in a local draft file so an interrupted session
// resumes where it stopped.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/cashoffer-funnel/internal/funnel"
	"github.com/wolfman30/cashoffer-funnel/internal/leads"
	"github.com/wolfman30/cashoffer-funnel/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	baseURL := flag.String("api", envOr("FUNNEL_API_URL", "http://localhost:8080"), "lead API base URL")
	draftPath := flag.String("draft", envOr("FUNNEL_DRAFT_PATH", defaultDraftPath()), "where the in-progress draft is kept")
	inactivity := flag.Duration("inactivity", funnel.DefaultInactivity, "idle time before the partial lead is flushed again")
	logLevel := flag.String("log-level", envOr("LOG_LEVEL", "warn"), "log level")
	flag.Parse()

	logger := logging.New(*logLevel)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *baseURL, *draftPath, *inactivity, os.Stdin, os.Stdout, logger); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
			fmt.Println("\nProgress saved. Run again to pick up where you left off.")
			return
		}
		logger.Error("funnel failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, baseURL, draftPath string, inactivity time.Duration, in io.Reader, out io.Writer, logger *logging.Logger) error {
	api, err := funnel.NewAPIClient(funnel.ClientConfig{BaseURL: baseURL})
	if err != nil {
		return err
	}
	ctrl, err := funnel.NewController(ctx, api, funnel.NewFileStorage(draftPath),
		funnel.WithInactivity(inactivity),
		funnel.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go ctrl.Watch(watchCtx, time.Minute)

	p := &prompter{in: bufio.NewScanner(in), out: out}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		state := ctrl.State()
		if state.Step == funnel.StepThankYou {
			fmt.Fprintln(out, "Thanks! We'll be in touch with your cash offer shortly.")
			return nil
		}
		answers, err := p.ask(state.Step, state.Fields)
		if err != nil {
			return err
		}
		if err := ctrl.Update(ctx, answers); err != nil {
			return err
		}
		next, err := ctrl.Advance(ctx)
		if err != nil {
			reportStepError(out, err)
			continue
		}
		if w := ctrl.State().Warning; w != "" {
			logger.Warn("lead saved with warning", "warning", w)
		}
		logger.Debug("step completed", "step", string(next))
	}
}

func reportStepError(out io.Writer, err error) {
	var (
		verr   *leads.ValidationError
		reqErr *funnel.RequestError
		synErr *funnel.SyncError
	)
	switch {
	case errors.As(err, &verr):
		fmt.Fprintf(out, "Please check %s: %s\n", verr.Field, verr.Reason)
	case errors.As(err, &reqErr) && reqErr.RetryAfter > 0:
		fmt.Fprintf(out, "Too many attempts. Try again in %d seconds.\n", reqErr.RetryAfter)
	case errors.As(err, &reqErr):
		fmt.Fprintf(out, "The server rejected that answer: %s\n", reqErr.Message)
	case errors.As(err, &synErr):
		fmt.Fprintln(out, "We couldn't save your details just now. Please try again.")
	default:
		fmt.Fprintf(out, "Something went wrong: %v\n", err)
	}
}

type prompter struct {
	in  *bufio.Scanner
	out io.Writer
}

// ask collects the answers for step. Pressing enter keeps the current value.
func (p *prompter) ask(step funnel.Step, current leads.Payload) (leads.Payload, error) {
	var (
		ans leads.Payload
		err error
	)
	read := func(dst *string, label, cur string) {
		if err != nil {
			return
		}
		*dst, err = p.line(label, cur)
	}
	switch step {
	case funnel.StepInitial:
		read(&ans.Address, "Property address", current.Address)
		read(&ans.Phone, "Phone (XXX) XXX-XXXX", current.Phone)
	case funnel.StepPropertyListed:
		var listed string
		cur := ""
		if current.IsPropertyListed != nil {
			cur = map[bool]string{true: "yes", false: "no"}[*current.IsPropertyListed]
		}
		read(&listed, "Is the property listed with an agent? (yes/no)", cur)
		if v, ok := parseYesNo(listed); ok {
			ans.IsPropertyListed = &v
		}
		read(&ans.PropertyCondition, "Property condition", current.PropertyCondition)
	case funnel.StepTimeline:
		read(&ans.Timeframe, "When do you want to sell?", current.Timeframe)
		read(&ans.Price, "Asking price", current.Price)
		read(&ans.ReasonForSelling, "Reason for selling (optional)", current.ReasonForSelling)
	case funnel.StepContact:
		read(&ans.FirstName, "First name", current.FirstName)
		read(&ans.LastName, "Last name", current.LastName)
		read(&ans.Email, "Email", current.Email)
	}
	return ans, err
}

func (p *prompter) line(label, current string) (string, error) {
	if current != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", label, current)
	} else {
		fmt.Fprintf(p.out, "%s: ", label)
	}
	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(p.in.Text()), nil
}

func parseYesNo(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes", "true":
		return true, true
	case "n", "no", "false":
		return false, true
	}
	return false, false
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func defaultDraftPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "cashoffer-funnel", "draft.json")
}
