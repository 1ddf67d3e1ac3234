package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"

	"github.com/Clark-Hu/comment-ratings/internal/ratings"
	"github.com/Clark-Hu/comment-ratings/internal/registry"
	"github.com/Clark-Hu/comment-ratings/internal/repository"
	"github.com/Clark-Hu/comment-ratings/internal/store"
)

// Options are the flags shared by every command.
type Options struct {
	DBURL   string `long:"db" env:"DB_URL" description:"Postgres connection string"`
	Verbose bool   `short:"v" long:"verbose" description:"Log progress to stderr"`
}

type ratingsctl struct {
	Options

	Migrate   migrateCmd   `command:"migrate" description:"Apply the database schema"`
	Recompute recomputeCmd `command:"recompute" description:"Rebuild rating aggregates from the stored votes"`
}

var (
	app ratingsctl
	ctx context.Context
)

type migrateCmd struct{}

func (c *migrateCmd) Execute(args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	return st.Migrate(ctx)
}

type recomputeCmd struct {
	Entity   string `long:"entity" default:"comments" description:"Host entity type"`
	Field    string `long:"field" description:"Rating field to repair; every field when empty"`
	ID       string `long:"id" description:"Repair a single object instead of every voted one"`
	SkipHost bool   `long:"skip-host" description:"Leave the host shadow columns untouched (requires --id)"`
}

func (c *recomputeCmd) Execute(args []string) error {
	if c.SkipHost && c.ID == "" {
		return errors.New("--skip-host requires --id")
	}

	reg, err := registry.New(0)
	if err != nil {
		return err
	}
	entity, err := reg.Entity(c.Entity)
	if err != nil {
		return err
	}
	fields := entity.Fields()
	if c.Field != "" {
		f, err := entity.Field(c.Field)
		if err != nil {
			return fmt.Errorf("%s: %w", c.Field, err)
		}
		fields = []*ratings.Field{f}
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	svc := ratings.NewService(repository.New(st).Votes, logger())
	for _, f := range fields {
		if c.ID != "" {
			score, err := svc.ManagerFor(entity, c.ID, f).Recompute(ctx, !c.SkipHost)
			if err != nil {
				return fmt.Errorf("recompute %s %s: %w", c.ID, f.Name(), err)
			}
			fmt.Printf("%s %s %s: votes=%d score=%g average=%.2f\n",
				entity.Name(), c.ID, f.Name(), score.Votes, score.Score, score.Average())
			continue
		}
		n, err := svc.RecomputeAll(ctx, entity, f)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s: recomputed %d object(s)\n", entity.Name(), f.Name(), n)
	}
	return nil
}

func logger() *log.Logger {
	if !app.Verbose {
		return log.New(io.Discard, "", 0)
	}
	return log.New(os.Stderr, "[ratingsctl] ", log.LstdFlags)
}

func openStore() (*store.Store, error) {
	if app.DBURL == "" {
		return nil, errors.New("database url missing: pass --db or set DB_URL")
	}
	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return store.New(dbCtx, app.DBURL, store.Options{
		MaxConns:    2,
		ConnTimeout: 10 * time.Second,
		Logger:      logger(),
	})
}

func main() {
	var stop context.CancelFunc
	ctx, stop = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	parser := flags.NewParser(&app, flags.Default)
	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return
		}
		stop()
		os.Exit(1)
	}
}
