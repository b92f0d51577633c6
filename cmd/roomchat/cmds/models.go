package cmds

import (
	"context"
	"strings"

	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/sources"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/roomchat/pkg/catalog"
	"github.com/go-go-golems/roomchat/pkg/config"
)

type ModelsCommand struct {
	*cmds.CommandDescription
}

type ModelsSettings struct {
	CatalogSource   string `glazed:"catalog-source"`
	CatalogFile     string `glazed:"catalog-file"`
	RedisAddr       string `glazed:"redis-addr"`
	CatalogRedisKey string `glazed:"catalog-redis-key"`
}

func NewModelsCommand() (*ModelsCommand, error) {
	glazedSection, err := settings.NewGlazedSection()
	if err != nil {
		return nil, err
	}

	desc := cmds.NewCommandDescription(
		"models",
		cmds.WithShort("List the model catalog served at /api/models"),
		cmds.WithFlags(
			fields.New(
				"catalog-source",
				fields.TypeString,
				fields.WithDefault("builtin"),
				fields.WithHelp("Where the model catalog comes from: builtin, file or redis"),
			),
			fields.New(
				"catalog-file",
				fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("YAML catalog file for --catalog-source=file"),
			),
			fields.New(
				"redis-addr",
				fields.TypeString,
				fields.WithDefault("localhost:6379"),
				fields.WithHelp("Redis address host:port"),
			),
			fields.New(
				"catalog-redis-key",
				fields.TypeString,
				fields.WithDefault(catalog.DefaultRedisKey),
				fields.WithHelp("Redis key holding the model catalog"),
			),
		),
		cmds.WithSections(glazedSection),
	)
	return &ModelsCommand{CommandDescription: desc}, nil
}

func (c *ModelsCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsed *values.Values,
	gp middlewares.Processor,
) error {
	ms := &ModelsSettings{}
	if err := parsed.DecodeSectionInto(values.DefaultSlug, ms); err != nil {
		return err
	}
	s := &config.Settings{
		CatalogSource:   ms.CatalogSource,
		CatalogFile:     ms.CatalogFile,
		RedisAddr:       ms.RedisAddr,
		CatalogRedisKey: ms.CatalogRedisKey,
	}
	src, closeSrc, err := catalogSource(s)
	if err != nil {
		return err
	}
	defer closeSrc()

	return emitModels(ctx, src, gp)
}

type rowAdder interface {
	AddRow(ctx context.Context, row types.Row) error
}

// emitModels writes one row per catalog entry, skipping entries without an id.
func emitModels(ctx context.Context, src catalog.Source, gp rowAdder) error {
	models, err := src.List(ctx)
	if err != nil {
		return err
	}
	for _, m := range models {
		if strings.TrimSpace(m.ID) == "" {
			continue
		}
		row := types.NewRow(
			types.MRP("id", m.ID),
			types.MRP("name", m.Name),
			types.MRP("provider", m.Provider),
			types.MRP("requires_key", m.RequiresKey),
			types.MRP("description", m.Description),
		)
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

var _ cmds.GlazeCommand = &ModelsCommand{}

// AddModelsCommand registers the models listing with ROOMCHAT_ env overrides.
func AddModelsCommand(root *cobra.Command) {
	modelsCmd, err := NewModelsCommand()
	cobra.CheckErr(err)
	cobraModelsCmd, err := cli.BuildCobraCommand(modelsCmd, cli.WithCobraMiddlewaresFunc(modelsMiddlewares))
	cobra.CheckErr(err)
	root.AddCommand(cobraModelsCmd)
}

func modelsMiddlewares(
	_ *values.Values,
	cmd *cobra.Command,
	args []string,
) ([]sources.Middleware, error) {
	return []sources.Middleware{
		sources.FromCobra(cmd),
		sources.FromArgs(args),
		sources.FromEnv(config.EnvPrefix,
			fields.WithSource("env"),
		),
		sources.FromDefaults(),
	}, nil
}
