package miner

import (
	"context"

	"github.com/klingon-tech/hybridnode/pkg/block"
)

// progressInterval is how often the worker reports its current nonce back
// to the round loop (spec.md §4.2: "progress every 100,000 attempts").
const progressInterval = 100_000

type msgKind int

const (
	kindProgress msgKind = iota
	kindBlock
	kindError
)

// workerMsg is the tagged union a worker posts over its channel:
// {progress{nonce}, block{...}, error{message}} (spec.md §4.2).
type workerMsg struct {
	kind  msgKind
	nonce uint64
	block *block.Block
	err   error
}

// runWorker brute-forces template.Nonce until the block meets its
// difficulty target, reporting progress every progressInterval attempts
// and a final block message on success. It never sends an error message
// today (the search itself cannot fail, only be cancelled) but the error
// arm is kept in the tagged union to match spec.md's literal contract and
// to carry future failures (e.g. template rejected before search starts).
func runWorker(ctx context.Context, template *block.Block, out chan<- workerMsg) {
	defer close(out)

	b := *template
	for nonce := uint64(0); ; nonce++ {
		if nonce%progressInterval == 0 && nonce != 0 {
			select {
			case out <- workerMsg{kind: kindProgress, nonce: nonce}:
			case <-ctx.Done():
				return
			}
		}
		if ctx.Err() != nil {
			return
		}

		b.Nonce = nonce
		b.Hash = b.ComputeHash()
		if b.MeetsTarget() {
			select {
			case out <- workerMsg{kind: kindBlock, block: &b}:
			case <-ctx.Done():
			}
			return
		}
	}
}
