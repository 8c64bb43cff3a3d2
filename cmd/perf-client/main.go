package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// PerfResult gathers aggregated metrics for the test run.
// Atomic counters are used to avoid lock‑contention on hot paths.
// LatencySum & P95Latency are in nanoseconds.
//
// P95Latency is maintained via a lightweight reservoir sampler.
type PerfResult struct {
	TotalRequests int64
	SuccessCount  int64
	ErrorCount    int64
	LatencySum    int64
	P95Latency    int64
}

const (
	baseURL        = "http://localhost:8080"
	fixedWorkers   = 50
	fixedRPSTarget = 700
	fixedDuration  = 30 * time.Second
	defaultTimeout = 30 * time.Second
	fixedPacks     = 50000
	fixedPackPrice = 100_000_000
)

func main() {
	rps := fixedRPSTarget
	duration := fixedDuration
	workers := fixedWorkers

	// ─── HTTP Client & Transport ─────────────────────────────────
	transport := &http.Transport{
		MaxIdleConns:        workers * 4,
		MaxIdleConnsPerHost: workers * 4,
		IdleConnTimeout:     90 * time.Second,
	}
	httpClient := &http.Client{
		Transport: transport,
		Timeout:   defaultTimeout,
	}

	// ─── Campaign handling ───────────────────────────────────────
	campaignID, err := openNewCampaign(httpClient, fixedPacks)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open campaign: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("opened campaign %s (%d packs)\n", campaignID, fixedPacks)

	// ─── Rate limiter & context ─────────────────────────────────
	burst := rps / workers
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	var result PerfResult
	var wg sync.WaitGroup

	// latencyChan collects latencies for P95 estimation.
	latencyChan := make(chan time.Duration, 4096)
	go trackP95(latencyChan, &result)

	// indexChan collects assigned pack indices for the consistency check.
	indexChan := make(chan uint32, 4096)
	seen := make(map[uint32]int)
	var collectorWG sync.WaitGroup
	collectorWG.Add(1)
	go func() {
		defer collectorWG.Done()
		for idx := range indexChan {
			seen[idx]++
		}
	}()

	// ─── Workers ────────────────────────────────────────────────
	for i := 0; i < workers; i++ {
		wg.Add(1)
		buyer := fmt.Sprintf("perf-buyer-%d", i)
		go func() {
			defer wg.Done()
			for {
				if err := limiter.Wait(ctx); err != nil { // context cancelled → exit
					return
				}
				doPurchase(httpClient, campaignID, buyer, &result, latencyChan, indexChan)
			}
		}()
	}

	start := time.Now()
	<-ctx.Done() // wait for duration

	// ─── Cleanup ────────────────────────────────────────────────
	wg.Wait()
	close(latencyChan)
	close(indexChan)
	collectorWG.Wait()

	totalDur := time.Since(start)

	// ─── Report ─────────────────────────────────────────────────
	fmt.Println("==========================================")
	fmt.Printf("duration          : %.2fs\n", totalDur.Seconds())
	fmt.Printf("total requests    : %d\n", result.TotalRequests)
	fmt.Printf("successful        : %d\n", result.SuccessCount)
	fmt.Printf("failed            : %d\n", result.ErrorCount)

	actualRPS := float64(result.SuccessCount) / totalDur.Seconds()
	successRate := float64(result.SuccessCount) / float64(result.TotalRequests) * 100

	var avgLatency time.Duration
	if result.SuccessCount > 0 {
		avgLatency = time.Duration(result.LatencySum / result.SuccessCount)
	}

	fmt.Printf("actual RPS        : %.2f\n", actualRPS)
	fmt.Printf("success rate      : %.2f%%\n", successRate)
	fmt.Printf("avg latency       : %v\n", avgLatency)
	fmt.Printf("P95 latency       : %v\n", time.Duration(result.P95Latency))
	fmt.Println("==========================================")

	// ─── Data Consistency Check ─────────────────────────────────
	if err := verifyConsistency(httpClient, campaignID, result.SuccessCount, seen); err != nil {
		fmt.Printf("consistency check failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("consistency check passed")
}

type openResponse struct {
	CampaignID string `json:"campaign_id"`
}

// openNewCampaign opens a fresh campaign with a random seed. The merkle root
// is irrelevant for a purchase-only run, so a zero root is committed.
func openNewCampaign(httpClient *http.Client, packs int) (string, error) {
	var seedBytes [8]byte
	if _, err := rand.Read(seedBytes[:]); err != nil {
		return "", err
	}
	seed := binary.LittleEndian.Uint64(seedBytes[:])

	body := map[string]interface{}{
		"seed":         seed,
		"merkle_root":  fmt.Sprintf("%064x", 0),
		"pack_price":   fixedPackPrice,
		"total_packs":  packs,
		"authority":    "perf-operator",
		"reward_asset": "PERF",
	}
	var resp openResponse
	if err := postJSON(httpClient, baseURL+"/v1/campaigns", body, &resp, http.StatusCreated); err != nil {
		return "", err
	}
	return resp.CampaignID, nil
}

type purchaseResponse struct {
	ReceiptID string `json:"receipt_id"`
	PackIndex uint32 `json:"pack_index"`
}

// doPurchase performs a single purchase request and collects metrics.
func doPurchase(httpClient *http.Client, campaignID, buyer string, result *PerfResult, latencyChan chan<- time.Duration, indexChan chan<- uint32) {
	start := time.Now()
	atomic.AddInt64(&result.TotalRequests, 1)

	var resp purchaseResponse
	err := postJSON(httpClient,
		fmt.Sprintf("%s/v1/campaigns/%s/purchase", baseURL, campaignID),
		map[string]string{"buyer": buyer}, &resp, http.StatusCreated)
	latency := time.Since(start)

	if err != nil || resp.ReceiptID == "" {
		atomic.AddInt64(&result.ErrorCount, 1)
		return
	}

	atomic.AddInt64(&result.SuccessCount, 1)
	atomic.AddInt64(&result.LatencySum, latency.Nanoseconds())
	indexChan <- resp.PackIndex
	select {
	case latencyChan <- latency:
	default:
	}
}

// trackP95 maintains a best‑effort rolling P95 latency estimation.
func trackP95(latencies <-chan time.Duration, result *PerfResult) {
	const size = 1000
	buf := make([]int64, 0, size)

	for lat := range latencies {
		if len(buf) < size {
			buf = append(buf, lat.Nanoseconds())
		} else {
			// Replace random element (simple reservoir sampling)
			if idx := time.Now().UnixNano() % int64(size); idx < int64(size/10) {
				buf[idx] = lat.Nanoseconds()
			}
		}

		// Update P95 periodically
		if len(buf) >= 100 && len(buf)%100 == 0 {
			copyBuf := make([]int64, len(buf))
			copy(copyBuf, buf)
			quickSort(copyBuf)
			p95Index := int(float64(len(copyBuf)) * 0.95)
			if p95Index >= len(copyBuf) {
				p95Index = len(copyBuf) - 1
			}
			atomic.StoreInt64(&result.P95Latency, copyBuf[p95Index])
		}
	}
}

// quickSort sorts the array in ascending order
func quickSort(arr []int64) {
	if len(arr) < 2 {
		return
	}

	left, right := 0, len(arr)-1
	pivot := len(arr) / 2

	arr[pivot], arr[right] = arr[right], arr[pivot]

	for i := range arr {
		if arr[i] < arr[right] {
			arr[left], arr[i] = arr[i], arr[left]
			left++
		}
	}

	arr[left], arr[right] = arr[right], arr[left]

	quickSort(arr[:left])
	quickSort(arr[left+1:])
}

type campaignState struct {
	PacksSold    uint32 `json:"packs_sold"`
	TotalPacks   uint32 `json:"total_packs"`
	VaultBalance uint64 `json:"vault_balance"`
}

// verifyConsistency checks that the server assigned exactly the contiguous
// index prefix 0..sold-1 with no duplicates and counted every payment.
func verifyConsistency(httpClient *http.Client, campaignID string, expectedSold int64, seen map[uint32]int) error {
	resp, err := httpClient.Get(fmt.Sprintf("%s/v1/campaigns/%s", baseURL, campaignID))
	if err != nil {
		return fmt.Errorf("get campaign: %w", err)
	}
	defer resp.Body.Close()

	var state campaignState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return fmt.Errorf("decode campaign: %w", err)
	}

	fmt.Printf("packs sold (server): %d\n", state.PacksSold)
	fmt.Printf("packs sold (client): %d\n", expectedSold)
	fmt.Printf("vault balance      : %d\n", state.VaultBalance)

	if int64(state.PacksSold) != expectedSold {
		return fmt.Errorf("sold count mismatch: server=%d client=%d", state.PacksSold, expectedSold)
	}
	if state.VaultBalance != uint64(state.PacksSold)*fixedPackPrice {
		return fmt.Errorf("vault balance mismatch: got %d, want %d",
			state.VaultBalance, uint64(state.PacksSold)*fixedPackPrice)
	}
	for i := uint32(0); int64(i) < expectedSold; i++ {
		switch seen[i] {
		case 1:
		case 0:
			return fmt.Errorf("gap in assigned indices at %d", i)
		default:
			return fmt.Errorf("index %d assigned %d times", i, seen[i])
		}
	}
	if len(seen) != int(expectedSold) {
		return fmt.Errorf("indices outside the contiguous prefix were assigned")
	}
	return nil
}

func postJSON(httpClient *http.Client, url string, body interface{}, out interface{}, wantStatus int) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := httpClient.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
