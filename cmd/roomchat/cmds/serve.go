package cmds

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/roomchat/pkg/catalog"
	"github.com/go-go-golems/roomchat/pkg/chat"
	"github.com/go-go-golems/roomchat/pkg/config"
	"github.com/go-go-golems/roomchat/pkg/eventbus"
	"github.com/go-go-golems/roomchat/pkg/inference"
	"github.com/go-go-golems/roomchat/pkg/retrieval"
	"github.com/go-go-golems/roomchat/pkg/webchat"
)

func NewServeCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve chat rooms over websockets",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := config.Load(v, cmd.Flags())
			if err != nil {
				return err
			}
			if err := s.Validate(); err != nil {
				return err
			}
			return runServe(cmd.Context(), s)
		},
	}
	config.AddServeFlags(cmd.Flags())
	return cmd
}

func runServe(ctx context.Context, s *config.Settings) error {
	if ctx == nil {
		ctx = context.Background()
	}

	backend, err := inference.NewBackend(inferenceSettings(s))
	if err != nil {
		return errors.Wrap(err, "build inference backend")
	}
	responder := inference.NewResponder(backend, s.DefaultModel)
	docs := retrieval.NewResponder(
		retrieval.NewClient(s.DocsBaseURL),
		backend,
		retrieval.Options{Timeout: s.DocsTimeout, DefaultModel: s.DefaultModel},
	)

	bus, err := eventbus.Build(eventbus.Settings{
		Redis:    s.EventbusRedis,
		Addr:     s.RedisAddr,
		Group:    "roomchat-tap",
		Consumer: "roomchat-1",
		Topic:    s.EventbusTopic,
	})
	if err != nil {
		return errors.Wrap(err, "build event bus")
	}
	defer func() { _ = bus.Close() }()
	if s.EventbusRedis {
		if err := eventbus.EnsureGroupAtTail(ctx, s.RedisAddr, s.EventbusTopic, "roomchat-tap"); err != nil {
			return errors.Wrap(err, "create event bus consumer group")
		}
	}
	tap := eventbus.NewTap(bus.Publisher, s.EventbusTopic, 1024)

	src, closeSrc, err := catalogSource(s)
	if err != nil {
		return err
	}
	defer closeSrc()

	rooms := webchat.NewRoomManager(webchat.RoomConfig{
		IdleGrace:    s.RoomIdleGrace,
		SendBuffer:   s.SendBuffer,
		WriteTimeout: s.WriteTimeout,
		PingInterval: s.PingInterval,
		Sessions:     webchat.LocalSessionInitializer{},
		Inference:    responder,
		Docs:         docs,
		Tap:          tap,
	})
	rooms.SetEvictionConfig(s.RoomIdleGrace, s.EvictionInterval)

	router := webchat.NewRouter(webchat.RouterOptions{
		Rooms:       rooms,
		DefaultRoom: s.DefaultRoom,
		Models:      catalog.NewHTTPHandler(src),
		Logger:      log.Logger.With().Str("component", "http").Logger(),
	})
	httpSrv := &http.Server{
		Addr:              s.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().
		Str("inference_backend", s.InferenceBackend).
		Str("default_model", s.DefaultModel).
		Str("catalog_source", s.CatalogSource).
		Bool("eventbus_redis", s.EventbusRedis).
		Msg("roomchat configured")

	return webchat.NewServer(rooms, httpSrv,
		tap.Run,
		func(ctx context.Context) error {
			return eventbus.Follow(ctx, bus.Subscriber, s.EventbusTopic, nil)
		},
	).Run(ctx)
}

func inferenceSettings(s *config.Settings) inference.Settings {
	return inference.Settings{
		Backend:            s.InferenceBackend,
		WorkersAIBaseURL:   s.WorkersAIBaseURL,
		WorkersAIAccountID: s.WorkersAIAccountID,
		WorkersAIAPIToken:  s.WorkersAIAPIToken,
		OpenAIAPIKey:       s.OpenAIAPIKey,
		OpenAIBaseURL:      s.OpenAIBaseURL,
		GeppettoAPIType:    s.GeppettoAPIType,
		Timeout:            60 * time.Second,
	}
}

func catalogSource(s *config.Settings) (catalog.Source, func(), error) {
	switch s.CatalogSource {
	case "", "builtin":
		return catalog.Builtin{}, func() {}, nil
	case "file":
		return catalog.FileSource{Path: s.CatalogFile}, func() {}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: s.RedisAddr})
		return catalog.NewRedisSource(client, s.CatalogRedisKey), func() { _ = client.Close() }, nil
	default:
		return nil, nil, errors.Errorf("unknown catalog source %q", s.CatalogSource)
	}
}

var _ webchat.EventTap = (*eventbus.Tap)(nil)
var _ webchat.DocsAnswerer = (*retrieval.Responder)(nil)
var _ chat.SessionProvider = (*webchat.Room)(nil)
