package main

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// A tiny JPEG header is enough for content sniffing on the server.
var selfie = []byte("\xff\xd8\xff\xe0load-test")

func punchForm(employeeID, punchType string) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	fields := map[string]string{
		"employeeId": employeeID,
		"punchType":  punchType,
		"latitude":   "-23.5505",
		"longitude":  "-46.6333",
		"deviceId":   "load-test",
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	part, err := w.CreateFormFile("selfie", "selfie.jpg")
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(selfie); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

func main() {
	// Configuration
	url := "http://localhost:8080/api/v1/ponto"

	numEmployees := 5000
	punchTypes := []string{"ENTRY", "EXIT"}
	totalRequests := numEmployees * len(punchTypes)
	concurrency := 50 // Number of concurrent requests to avoid local port exhaustion

	fmt.Printf("Starting load test: %d employees (%d punches each) to %s with concurrency %d\n", numEmployees, len(punchTypes), url, concurrency)

	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency) // Semaphore to limit concurrency

	var successCount, rejectedCount, failCount int64

	startTime := time.Now()

	for i := 0; i < numEmployees; i++ {
		wg.Add(1)
		sem <- struct{}{} // Acquire token

		employeeID := fmt.Sprintf("load-test-emp-%d", i)

		go func(empID string) {
			defer wg.Done()
			defer func() { <-sem }() // Release token

			for _, punchType := range punchTypes {
				body, contentType, err := punchForm(empID, punchType)
				if err != nil {
					atomic.AddInt64(&failCount, 1)
					continue
				}
				resp, err := http.Post(url, contentType, body)
				if err != nil {
					atomic.AddInt64(&failCount, 1)
					continue
				}

				switch {
				case resp.StatusCode >= 200 && resp.StatusCode < 300:
					atomic.AddInt64(&successCount, 1)
				case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusNotFound:
					// Already punched today, or the employee is not seeded.
					atomic.AddInt64(&rejectedCount, 1)
				default:
					atomic.AddInt64(&failCount, 1)
				}
				resp.Body.Close()
			}
		}(employeeID)
	}

	wg.Wait()
	duration := time.Since(startTime)

	fmt.Println("\n--- Load Test Results ---")
	fmt.Printf("Total Duration: %v\n", duration)
	fmt.Printf("Total Requests: %d\n", totalRequests)
	fmt.Printf("Successful:     %d\n", successCount)
	fmt.Printf("Rejected:       %d\n", rejectedCount)
	fmt.Printf("Failed:         %d\n", failCount)
	fmt.Printf("Requests/Sec:   %.2f\n", float64(totalRequests)/duration.Seconds())
}
