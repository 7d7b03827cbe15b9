package integration

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/fairyhunter13/service-marketplace-ledger/internal/client"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/payment"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/token"
)

// Many sellers publish concurrently; every command must commit exactly once
// and the journal must number them without gaps.
func TestConcurrentSellersCommitInOrder(t *testing.T) {
	cfg := testConfig()
	tok := token.New(cfg.Token.Config, cfg.Admin())
	l := boot(t, cfg, filepath.Join(t.TempDir(), "journal.db"), payment.Local{T: tok}, tok, 1_000)
	defer l.close()
	ctx := context.Background()

	const sellers, perSeller = 20, 5
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seqs = make(map[uint64]bool)
	)
	errCh := make(chan error, sellers*perSeller)
	for g := 0; g < sellers; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			c := client.New(l.url, fmt.Sprintf("0x%040x", 0x1000+g))
			for i := 0; i < perSeller; i++ {
				res, err := c.CreateService(ctx, fmt.Sprintf("svc-%d-%d", g, i))
				if err != nil {
					errCh <- err
					return
				}
				mu.Lock()
				for _, ev := range res.Events {
					seqs[ev.Seq] = true
				}
				mu.Unlock()
			}
		}(g)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatal(err)
	}

	page := must[client.ServicePage](t)(client.New(l.url, "").Services(ctx, 0, 1000))
	if page.Total != sellers*perSeller {
		t.Fatalf("expected %d services, got %d", sellers*perSeller, page.Total)
	}
	// Bootstrap took seq 1 and 2.
	for s := uint64(3); s < 3+sellers*perSeller; s++ {
		if !seqs[s] {
			t.Fatalf("journal seq %d missing", s)
		}
	}
}

// go test -bench=. ./internal/integration -run ^$
func BenchmarkCreateService(b *testing.B) {
	cfg := testConfig()
	tok := token.New(cfg.Token.Config, cfg.Admin())
	l := boot(b, cfg, filepath.Join(b.TempDir(), "journal.db"), payment.Local{T: tok}, tok, 1_000)
	defer l.close()
	ctx := context.Background()
	var n sync.Mutex
	next := 0
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		c := client.New(l.url, seller)
		for pb.Next() {
			n.Lock()
			next++
			id := next
			n.Unlock()
			if _, err := c.CreateService(ctx, fmt.Sprintf("bench-%d", id)); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
