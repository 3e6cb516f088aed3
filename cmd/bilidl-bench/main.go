package main

import (
	bytes "bytes"
	encodingjson "encoding/json"
	flag "flag"
	fmt "fmt"
	http "net/http"
	strings "strings"
	sync "sync"
	time "time"
)

type HealthResp struct {
	Status         string `json:"status"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	CompletedTasks int64  `json:"completed_tasks"`
	FailedTasks    int64  `json:"failed_tasks"`
	SkippedTasks   int64  `json:"skipped_tasks"`
}

type SessionResp struct {
	SessionID string `json:"session_id"`
	IsLogin   bool   `json:"is_login"`
	Error     string `json:"error"`
}

type JobResult struct {
	SessionID string
	OK        bool
	Err       string
	HealthMs  int64
	StatusMs  int64
	TotalMs   int64
}

func main() {
	base := flag.String("base", "http://127.0.0.1:8080", "rpcstub base URL")
	sessionIDs := flag.String("sessions", "", "comma-separated session ids to probe, reused round-robin")
	n := flag.Int("n", 20, "number of concurrent probes")
	perReqDelay := flag.Duration("delay", 0, "stagger start delay between jobs (to avoid per-IP limits)")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}

	ids := strings.Split(*sessionIDs, ",")
	if *sessionIDs == "" {
		ids = []string{"smoke-test-session"}
	}

	results := make([]JobResult, *n)
	var wg sync.WaitGroup
	wg.Add(*n)

	for i := 0; i < *n; i++ {
		i := i
		go func() {
			defer wg.Done()
			if *perReqDelay > 0 && i > 0 {
				time.Sleep(time.Duration(i) * *perReqDelay)
			}
			id := ids[i%len(ids)]
			results[i] = runOne(client, *base, id)
		}()
	}

	wg.Wait()

	fmt.Println("\nPer-probe summary:")
	for i, r := range results {
		status := "OK"
		if !r.OK {
			status = "FAIL"
		}
		fmt.Printf("%2d) session=%s status=%s health=%dms status_check=%dms total=%dms\n",
			i+1, r.SessionID, status, r.HealthMs, r.StatusMs, r.TotalMs)
		if r.Err != "" {
			fmt.Printf("    error: %s\n", r.Err)
		}
	}

	var c int
	var healthSum, statusSum, totSum int64
	for _, r := range results {
		if !r.OK {
			continue
		}
		c++
		healthSum += r.HealthMs
		statusSum += r.StatusMs
		totSum += r.TotalMs
	}
	if c > 0 {
		fmt.Printf("\nAverages over %d completed:\n", c)
		fmt.Printf("health=%.0fms status=%.0fms total=%.0fms\n",
			float64(healthSum)/float64(c), float64(statusSum)/float64(c), float64(totSum)/float64(c))
	}
}

func runOne(client *http.Client, base, sessionID string) JobResult {
	res := JobResult{SessionID: sessionID}
	start := time.Now()

	hStart := time.Now()
	var health HealthResp
	if err := getJSON(client, strings.TrimRight(base, "/")+"/health", &health); err != nil {
		res.Err = "health: " + err.Error()
		return res
	}
	res.HealthMs = time.Since(hStart).Milliseconds()

	sStart := time.Now()
	var st SessionResp
	if err := getJSON(client, strings.TrimRight(base, "/")+"/sessions/"+sessionID, &st); err != nil {
		res.Err = "session status: " + err.Error()
		return res
	}
	res.StatusMs = time.Since(sStart).Milliseconds()

	res.TotalMs = time.Since(start).Milliseconds()
	res.OK = true
	return res
}

func getJSON(client *http.Client, url string, v any) error {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return err
	}
	return encodingjson.Unmarshal(buf.Bytes(), v)
}
