package traceir

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/vulcanize/go-trace-ir/code"
	"github.com/vulcanize/go-trace-ir/ir"
	"github.com/vulcanize/go-trace-ir/metrics"
	"github.com/vulcanize/go-trace-ir/payload"
	"github.com/vulcanize/go-trace-ir/replay"
	"github.com/vulcanize/go-trace-ir/trie"
)

// Processor runs the decode→build→resolve→replay→emit pipeline over trace
// payloads. It holds no per-block state and is safe for concurrent use, one
// block per goroutine.
type Processor struct {
	log *zap.Logger
}

// NewProcessor returns a processor logging through the given logger.
func NewProcessor(log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{log: log}
}

// Process translates one block's trace payload into its generation units.
// Cancellation is honored only before the block's tries are touched: a block
// either runs the full sequence or is abandoned cleanly, so a retry always
// starts from an untouched pre-block state. Every failure is returned
// unmodified; a failed block never affects others.
func (p *Processor) Process(ctx context.Context, raw []byte) ([]*ir.Generation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	pl, err := payload.DecodeBytes(raw)
	if err != nil {
		return nil, p.fail(err)
	}
	log := p.log.With(zap.Uint64("block", pl.Header.Number))

	set := trie.NewNodeSet(pl.Nodes)
	if err := set.Verify(); err != nil {
		return nil, p.fail(err)
	}
	state, err := trie.Build(pl.PreStateRoot, set)
	if err != nil {
		return nil, p.fail(err)
	}

	resolved, err := code.Resolve(pl.Code, codeRefs(pl.Txs))
	if err != nil {
		return nil, p.fail(err)
	}

	witnesses, err := replay.New(state, set, resolved).ReplayAll(pl.Txs)
	if err != nil {
		return nil, p.fail(err)
	}

	units := make([]*ir.Generation, len(witnesses))
	for i, w := range witnesses {
		units[i] = ir.FromWitness(i, &pl.Txs[i], w)
	}

	took := time.Since(start)
	metrics.BlockProcessed(len(units), took.Seconds())
	log.Info("block translated",
		zap.Int("txs", len(units)),
		zap.Int("proofNodes", set.Len()),
		zap.Duration("took", took))
	return units, nil
}

func (p *Processor) fail(err error) error {
	metrics.BlockFailed()
	p.log.Warn("block translation failed", zap.Error(err))
	return err
}

// codeRefs gathers every code hash the block's operation logs reference.
func codeRefs(txs []payload.TxTrace) []common.Hash {
	var refs []common.Hash
	seen := make(map[common.Hash]bool)
	for i := range txs {
		for j := range txs[i].Ops {
			h := txs[i].Ops[j].CodeHash
			if h != nil && !seen[*h] {
				seen[*h] = true
				refs = append(refs, *h)
			}
		}
	}
	return refs
}
