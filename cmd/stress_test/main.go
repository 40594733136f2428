// Command stress_test races concurrent order submissions for a single
// product against a running server and reports how many claims the
// inventory guard let through.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	baseURL       = "http://localhost:8080"
	initialStock  = 20
	totalRequests = 50
)

func main() {
	client := &http.Client{Timeout: 10 * time.Second}

	userID := createUser(client)
	productID := createProduct(client)

	var successCount atomic.Int32
	var soldOutCount atomic.Int32
	var otherCount atomic.Int32

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			body, _ := json.Marshal(map[string]any{
				"user_id": userID,
				"items":   []map[string]any{{"product_id": productID, "quantity": 1}},
			})
			req, _ := http.NewRequest(http.MethodPost, baseURL+"/api/orders", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Idempotency-Key", uuid.New().String())

			resp, err := client.Do(req)
			if err != nil {
				otherCount.Add(1)
				return
			}
			resp.Body.Close()

			switch resp.StatusCode {
			case http.StatusCreated:
				successCount.Add(1)
			case http.StatusGone:
				soldOutCount.Add(1)
			default:
				otherCount.Add(1)
			}
		}()
	}
	wg.Wait()

	fmt.Printf("completed %d requests in %v\n", totalRequests, time.Since(start))
	fmt.Printf("  orders placed: %d (stock was %d)\n", successCount.Load(), initialStock)
	fmt.Printf("  sold out:      %d\n", soldOutCount.Load())
	fmt.Printf("  other:         %d\n", otherCount.Load())

	if int(successCount.Load()) != initialStock {
		fmt.Println("WARNING: placed orders do not match initial stock")
	}
}

func createUser(client *http.Client) string {
	body, _ := json.Marshal(map[string]any{
		"name":     "Stress Tester",
		"email":    fmt.Sprintf("stress-%s@example.com", uuid.New().String()[:8]),
		"password": "secret123",
		"address": map[string]string{
			"street": "Rua A", "number": "1", "city": "Sao Paulo", "state": "SP", "postal_code": "00000-000",
		},
	})
	resp, err := client.Post(baseURL+"/api/users", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("failed to create user: %v", err)
	}
	defer resp.Body.Close()

	var user struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil || user.ID == "" {
		log.Fatalf("unexpected create user response (status %d): %v", resp.StatusCode, err)
	}
	return user.ID
}

func createProduct(client *http.Client) string {
	body, _ := json.Marshal(map[string]any{
		"name":     fmt.Sprintf("Stress Item %s", uuid.New().String()[:8]),
		"price":    "9.90",
		"quantity": initialStock,
	})
	resp, err := client.Post(baseURL+"/api/products", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("failed to create product: %v", err)
	}
	defer resp.Body.Close()

	var product struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&product); err != nil || product.ID == "" {
		log.Fatalf("unexpected create product response (status %d): %v", resp.StatusCode, err)
	}
	return product.ID
}
