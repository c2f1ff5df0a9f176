// Command trace-ir is a standalone worker that translates trace payload
// files into generation IR files. Blocks are independent, so payloads are
// processed concurrently; a failed block is logged and skipped without
// affecting the rest. Shutdown signals are honored at block boundaries.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	arg "github.com/alexflint/go-arg"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	traceir "github.com/vulcanize/go-trace-ir"
	"github.com/vulcanize/go-trace-ir/ir"
	"github.com/vulcanize/go-trace-ir/metrics"
)

type args struct {
	Input   string `arg:"positional,required" help:"payload file, or directory of *.cbor payloads"`
	Output  string `arg:"-o,--output" default:"." help:"directory for emitted IR units"`
	Config  string `arg:"-c,--config" help:"yaml config path"`
	Workers int    `arg:"-w,--workers" help:"concurrent blocks (overrides config)"`
}

type config struct {
	Workers        int    `yaml:"workers"`
	MetricsAddress string `yaml:"metrics_address"`
}

func main() {
	var a args
	arg.MustParse(&a)

	cfg := config{Workers: 4}
	if a.Config != "" {
		raw, err := os.ReadFile(a.Config)
		if err == nil {
			err = yaml.Unmarshal(raw, &cfg)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid config %s: %v\n", a.Config, err)
			os.Exit(1)
		}
	}
	if a.Workers > 0 {
		cfg.Workers = a.Workers
	}

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddress != "" {
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddress, metrics.Handler()); err != nil {
				log.Warn("metrics endpoint stopped", zap.Error(err))
			}
		}()
	}

	files, err := payloadFiles(a.Input)
	if err != nil {
		log.Fatal("listing payloads", zap.Error(err))
	}
	if err := os.MkdirAll(a.Output, 0o755); err != nil {
		log.Fatal("creating output dir", zap.Error(err))
	}

	proc := traceir.NewProcessor(log)
	jobs := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				// a block either runs whole or not at all
				if ctx.Err() != nil {
					continue
				}
				if err := processFile(ctx, proc, path, a.Output); err != nil {
					log.Error("payload skipped", zap.String("path", path), zap.Error(err))
				}
			}
		}()
	}
	for _, f := range files {
		jobs <- f
	}
	close(jobs)
	wg.Wait()
}

func payloadFiles(input string) ([]string, error) {
	info, err := os.Stat(input)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{input}, nil
	}
	return filepath.Glob(filepath.Join(input, "*.cbor"))
}

func processFile(ctx context.Context, proc *traceir.Processor, path, outDir string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	units, err := proc.Process(ctx, raw)
	if err != nil {
		return err
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	for _, unit := range units {
		enc, err := ir.EncodeBytes(unit)
		if err != nil {
			return err
		}
		metrics.IREmitted(len(enc))
		id, err := unit.Cid()
		if err != nil {
			return err
		}
		name := fmt.Sprintf("%s-%03d-%s.cbor", base, unit.TxIndex, id)
		if err := os.WriteFile(filepath.Join(outDir, name), enc, 0o644); err != nil {
			return err
		}
	}
	return nil
}
