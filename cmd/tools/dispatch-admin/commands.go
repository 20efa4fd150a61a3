// cmd/tools/dispatch-admin/commands.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/DavidGamba/go-getoptions"
	"github.com/google/uuid"

	"notification-dispatch/internal/app"
	"notification-dispatch/internal/common/camunda"
	"notification-dispatch/internal/common/config"
	"notification-dispatch/internal/common/database"
	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/models"
	"notification-dispatch/internal/store"
	"notification-dispatch/pkg/registry"
)

var stdout io.Writer = os.Stdout

type commonOptions struct {
	Config  string
	Verbose bool
}

// newOptions declares the options every command accepts.
func newOptions(common *commonOptions) *getoptions.GetOpt {
	opt := getoptions.New()
	opt.Bool("help", false, opt.Alias("h", "?"))
	opt.StringVar(&common.Config, "config", "",
		opt.Alias("c"),
		opt.Description("path to the configuration file; defaults to configs/config.yaml"))
	opt.BoolVar(&common.Verbose, "verbose", false,
		opt.Alias("v"),
		opt.Description("log at debug level"))
	return opt
}

// parse returns done=true when help was requested.
func parse(opt *getoptions.GetOpt, args []string) (bool, error) {
	_, err := opt.Parse(args)
	if opt.Called("help") {
		fmt.Fprint(os.Stderr, opt.Help())
		return true, nil
	}
	if err != nil {
		fmt.Fprint(os.Stderr, opt.Help(getoptions.HelpSynopsis))
		return false, err
	}
	return false, nil
}

type session struct {
	cfg    *config.Config
	log    logger.Logger
	pg     *database.PostgresClient
	redis  *database.RedisClient
	engine *app.Engine
}

func openSession(ctx context.Context, common commonOptions) (*session, error) {
	var (
		cfg *config.Config
		err error
	)
	if common.Config != "" {
		cfg, err = config.LoadFromFile(common.Config)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	level := "warn"
	if common.Verbose {
		level = "debug"
	}
	log := logger.NewStructured(level, "console", "stderr")

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		return nil, err
	}
	if err := pg.Ping(ctx); err != nil {
		pg.Close()
		return nil, err
	}

	s := &session{cfg: cfg, log: log, pg: pg}
	res := app.Resources{DB: pg.GetDB()}

	// seeding must reach the worker manager's subscriber cache
	if cfg.Database.Redis.Enabled && cfg.Dispatch.SubscriberCacheTTL > 0 {
		rc, err := database.NewRedis(cfg.Database.Redis)
		if err == nil {
			err = rc.Ping(ctx)
		}
		if err != nil {
			if rc != nil {
				rc.Close()
			}
			pg.Close()
			return nil, fmt.Errorf("subscriber cache is enabled but redis is unreachable: %w", err)
		}
		s.redis = rc
		res.Redis = rc.GetClient()
	}

	s.engine = app.NewEngine(cfg, res, log)
	return s, nil
}

func (s *session) Close() {
	if s.redis != nil {
		s.redis.Close()
	}
	s.pg.Close()
}

func runMigrate(ctx context.Context, args []string) error {
	var common commonOptions
	if done, err := parse(newOptions(&common), args); done || err != nil {
		return err
	}

	s, err := openSession(ctx, common)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := store.Migrate(ctx, s.pg.GetDB(), s.log); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "migrations applied")
	return nil
}

func runSeed(ctx context.Context, args []string) error {
	var common commonOptions
	if done, err := parse(newOptions(&common), args); done || err != nil {
		return err
	}

	s, err := openSession(ctx, common)
	if err != nil {
		return err
	}
	defer s.Close()

	result, err := s.engine.Seed(ctx)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runPublish(ctx context.Context, args []string) error {
	var (
		common    commonOptions
		category  string
		body      string
		viaZeebe  bool
		processID string
	)
	opt := newOptions(&common)
	opt.StringVar(&category, "category", "", opt.Required(), opt.Description("category id or name"))
	opt.StringVar(&body, "message", "", opt.Required(), opt.Alias("m"), opt.Description("message text"))
	opt.BoolVar(&viaZeebe, "zeebe", false, opt.Description("start the workflow instead of dispatching in-process"))
	opt.StringVar(&processID, "process", "notification-dispatch", opt.Description("BPMN process id used with --zeebe"))
	if done, err := parse(opt, args); done || err != nil {
		return err
	}

	s, err := openSession(ctx, common)
	if err != nil {
		return err
	}
	defer s.Close()

	categories, err := s.engine.Store.ListCategories(ctx)
	if err != nil {
		return err
	}
	target, err := resolveCategory(categories, category)
	if err != nil {
		return err
	}

	if viaZeebe {
		zeebe, err := camunda.NewClient(s.cfg.Camunda)
		if err != nil {
			return err
		}
		defer zeebe.Close()

		key, err := zeebe.PublishMessageCreated(ctx, processID, map[string]interface{}{
			"categoryId": target.ID.String(),
			"message":    body,
		})
		if err != nil {
			return err
		}
		return printJSON(map[string]interface{}{"processInstanceKey": key})
	}

	msg, err := s.engine.Store.CreateMessage(ctx, target.ID, body)
	if err != nil {
		return err
	}
	report, dispatchErr := s.engine.Orchestrator.Dispatch(ctx, msg)
	summary := report.Summary()
	summary["category"] = target.Name
	if err := printJSON(summary); err != nil {
		return err
	}
	return dispatchErr
}

func runLogs(ctx context.Context, args []string) error {
	var (
		common    commonOptions
		messageID string
		userID    string
		kind      string
		limit     int
	)
	opt := newOptions(&common)
	opt.StringVar(&messageID, "message-id", "", opt.Description("only logs of this message"))
	opt.StringVar(&userID, "user-id", "", opt.Description("only logs of this user"))
	opt.StringVar(&kind, "kind", "", opt.Description("only logs of this channel kind (SMS, E-Mail, Push Notification)"))
	opt.IntVar(&limit, "limit", 100, opt.Description("maximum number of logs"))
	if done, err := parse(opt, args); done || err != nil {
		return err
	}

	filter, err := buildFilter(messageID, userID, kind, limit)
	if err != nil {
		return err
	}

	s, err := openSession(ctx, common)
	if err != nil {
		return err
	}
	defer s.Close()

	logs, err := s.engine.Store.ListDeliveryLogs(ctx, filter)
	if err != nil {
		return err
	}
	if logs == nil {
		logs = []models.DeliveryLog{}
	}
	return printJSON(logs)
}

func runRegistry(_ context.Context, args []string) error {
	var (
		path   string
		export string
	)
	opt := getoptions.New()
	opt.Bool("help", false, opt.Alias("h", "?"))
	opt.StringVar(&path, "path", "", opt.Description("registry file to validate; defaults to the embedded registry"))
	opt.StringVar(&export, "export", "", opt.Description("write the registry to this path"))
	if done, err := parse(opt, args); done || err != nil {
		return err
	}

	reg := registry.Default()
	if path != "" {
		loaded, err := registry.LoadRegistry(path)
		if err != nil {
			return err
		}
		reg = loaded
	}

	if err := reg.Validate(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "registry valid: %d activities\n", len(reg.Activities))

	if export != "" {
		if err := reg.Save(export); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "registry written to %s\n", export)
	}
	return nil
}

// resolveCategory accepts a category id or a case-insensitive name.
func resolveCategory(categories []models.Category, ref string) (models.Category, error) {
	if id, err := uuid.Parse(ref); err == nil {
		for _, c := range categories {
			if c.ID == id {
				return c, nil
			}
		}
		return models.Category{}, fmt.Errorf("category %s not found", ref)
	}

	for _, c := range categories {
		if strings.EqualFold(c.Name, ref) {
			return c, nil
		}
	}

	names := make([]string, 0, len(categories))
	for _, c := range categories {
		names = append(names, c.Name)
	}
	return models.Category{}, fmt.Errorf("category %q not found; known categories: %s", ref, strings.Join(names, ", "))
}

func buildFilter(messageID, userID, kind string, limit int) (models.DeliveryLogFilter, error) {
	var filter models.DeliveryLogFilter
	if messageID != "" {
		id, err := uuid.Parse(messageID)
		if err != nil {
			return filter, fmt.Errorf("invalid --message-id: %w", err)
		}
		filter.MessageID = id
	}
	if userID != "" {
		id, err := uuid.Parse(userID)
		if err != nil {
			return filter, fmt.Errorf("invalid --user-id: %w", err)
		}
		filter.UserID = id
	}
	if kind != "" {
		filter.ChannelKind = models.ChannelKind(kind)
		if !filter.ChannelKind.Valid() {
			return filter, fmt.Errorf("invalid --kind %q", kind)
		}
	}
	if limit > 0 {
		filter.Limit = uint64(limit)
	}
	return filter, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
