package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cnclabs/deal/internal/config"
	"github.com/cnclabs/deal/internal/metrics"
	"github.com/cnclabs/deal/internal/models/deal"
	"github.com/cnclabs/deal/pkg/attrnet"
	"github.com/cnclabs/deal/pkg/nn"
)

var (
	configPath string
	edgesPath  string
	attrsPath  string
	outputPath string
	epochs     int
)

var rootCmd = &cobra.Command{
	Use:   "deal",
	Short: "DEAL - link prediction for attributed networks",
	Long: `DEAL learns node identity embeddings and attribute embeddings and
predicts links from structure, attributes and their alignment.`,
	SilenceUsage: true,
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a DEAL model and save its embeddings",
	Long: `Train a DEAL model on an edge list and a node attribute file.

The edge list holds "u v" lines, the attribute file "node attr[:weight] ..."
lines. Edges are split into train/validation/test positives with sampled
negatives; distances are computed on the training graph only.

Examples:
  deal train --edges net.txt --attributes attrs.txt --output rep.txt
  deal train --config deal.yaml --epochs 20`,
	RunE: runTrain,
}

func init() {
	trainCmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	trainCmd.Flags().StringVar(&edgesPath, "edges", "", "edge list file (overrides data.edges)")
	trainCmd.Flags().StringVar(&attrsPath, "attributes", "", "node attribute file (overrides data.attributes)")
	trainCmd.Flags().StringVarP(&outputPath, "output", "o", "", "embedding output file (overrides data.output)")
	trainCmd.Flags().IntVar(&epochs, "epochs", 0, "training epochs (overrides train.epochs)")
	rootCmd.AddCommand(trainCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("edges") {
		cfg.Data.Edges = edgesPath
	}
	if flags.Changed("attributes") {
		cfg.Data.Attributes = attrsPath
	}
	if flags.Changed("output") {
		cfg.Data.Output = outputPath
	}
	if flags.Changed("epochs") {
		cfg.Train.Epochs = epochs
	}
	if cfg.Data.Edges == "" || cfg.Data.Attributes == "" {
		return nil, errors.New("both an edge list and an attribute file are required")
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg config.Log) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	if cfg.Format == "console" {
		encCfg = zap.NewDevelopmentEncoderConfig()
	}
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	zapCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         cfg.Format,
		EncoderConfig:    encCfg,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	return zapCfg.Build()
}

// serveMetrics exposes reg on addr until the returned stop function is called
func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func runTrain(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()
	logger = logger.With(zap.String("run_id", cfg.RunID))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	net := attrnet.NewNetwork()
	if err := net.LoadEdgeList(cfg.Data.Edges); err != nil {
		return fmt.Errorf("loading edge list: %w", err)
	}
	attrs, err := attrnet.LoadAttributes(cfg.Data.Attributes, net)
	if err != nil {
		return fmt.Errorf("loading attributes: %w", err)
	}
	logger.Info("loaded network",
		zap.Int("nodes", net.NumNodes()),
		zap.Int("edges", len(net.Edges)),
		zap.Int("attributes", attrs.NumAttrs()),
	)

	rng := rand.New(rand.NewSource(cfg.Model.Seed))
	split, err := attrnet.SplitEdges(net, cfg.SplitOptions(), rng)
	if err != nil {
		return err
	}
	data, err := attrnet.BuildData(split.TrainNet, attrs, cfg.Data.DistCutoff)
	if err != nil {
		return err
	}
	logger.Info("split edges",
		zap.Int("train_pairs", split.Train.Len()),
		zap.Int("val_pairs", split.Val.Len()),
		zap.Int("test_pairs", split.Test.Len()),
	)

	opts, err := cfg.Options()
	if err != nil {
		return err
	}
	model, err := deal.New(cfg.Model.EmbDim, data.AttrNum, data.NodeNum, opts)
	if err != nil {
		return err
	}

	var recorder deal.Recorder
	var collector *metrics.Collector
	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		if collector, err = metrics.New(reg); err != nil {
			return err
		}
		recorder = collector
		defer serveMetrics(cfg.Metrics.Addr, reg, logger)()
	}

	trainer, err := deal.NewTrainer(model, data, nn.NewAdam(cfg.Train.LR, cfg.Train.WeightDecay), cfg.TrainOptions(), logger, recorder)
	if err != nil {
		return err
	}
	if _, err := trainer.Fit(ctx, split.Train, split.Val); err != nil {
		return fmt.Errorf("training: %w", err)
	}

	if split.Test.Len() > 0 {
		res, err := trainer.Evaluate(split.Test)
		if err != nil {
			return fmt.Errorf("test evaluation: %w", err)
		}
		if collector != nil {
			collector.ObserveEval("test", res)
		}
		logger.Info("test evaluation",
			zap.Float64("auc", res.AUC),
			zap.Float64("ap", res.AP),
			zap.Float64("criterion", res.CriterionLoss),
			zap.Float64("pearson", res.NodeAttrPearson),
		)
	}

	if err := model.SaveWeights(cfg.Data.Output, data, net.VertexKeys); err != nil {
		return err
	}
	if err := cfg.Write(cfg.Data.Output + ".yaml"); err != nil {
		return err
	}
	logger.Info("saved embeddings", zap.String("output", cfg.Data.Output))
	return nil
}
