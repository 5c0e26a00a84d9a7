package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Result 记录单次请求的 HTTP 结果，便于聚合统计。
type Result struct {
	Status int
	Body   string
	Cookie *http.Cookie
	Err    error

	cookies []*http.Cookie
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base url")
	dessertID := flag.Int("dessert", 1, "dessert id")
	quantity := flag.Int("qty", 1, "quantity per add-to-cart")
	cookieName := flag.String("cookie", "cart_id", "cart cookie name")
	cleanup := flag.Bool("cleanup", true, "clear all carts after the oversell test")

	// 超卖测试参数：200 个购物车并发抢同一甜品
	nCarts := flag.Int("carts", 200, "distinct carts")
	concurrency := flag.Int("c", 50, "max concurrency")

	// 出价测试：bids>0 时注册一个账号，对 listing 并发递增出价
	listingID := flag.Int("listing", 1, "auction listing id")
	nBids := flag.Int("bids", 0, "concurrent bids to send (0 disables)")
	flag.Parse()

	client := &http.Client{Timeout: 5 * time.Second}

	before, err := getStock(client, *baseURL, *dessertID)
	if err != nil {
		fmt.Println("initial stock check failed:", err)
		os.Exit(1)
	}

	// 1) 不超卖测试：不同购物车并发预占
	fmt.Printf("start oversell test: dessert=%d carts=%d qty=%d concurrency=%d stock=%d\n",
		*dessertID, *nCarts, *quantity, *concurrency, before)
	results := runAdd(client, *baseURL, *dessertID, *quantity, *cookieName, *nCarts, *concurrency)
	printSummary("oversell", results)

	reserved := 0
	for _, r := range results {
		if r.Err == nil && r.Status == http.StatusOK {
			reserved += *quantity
		}
	}
	after, err := getStock(client, *baseURL, *dessertID)
	if err != nil {
		fmt.Println("final stock check failed:", err)
	} else {
		fmt.Printf("stock before=%d reserved=%d after=%d\n", before, reserved, after)
		if after < 0 || reserved > before {
			fmt.Println("OVERSOLD")
			os.Exit(2)
		}
	}

	if *cleanup {
		for _, r := range results {
			if r.Cookie != nil {
				_, _ = post(client, *baseURL+"/cart/clear", nil, r.Cookie, "")
			}
		}
		if restored, err := getStock(client, *baseURL, *dessertID); err == nil {
			fmt.Println("stock after cleanup:", restored)
		}
	}

	if *nBids > 0 {
		fmt.Printf("\nstart bid test: listing=%d bids=%d concurrency=%d\n", *listingID, *nBids, *concurrency)
		token, err := registerBidder(client, *baseURL)
		if err != nil {
			fmt.Println("register bidder failed:", err)
			os.Exit(1)
		}
		results := runBids(client, *baseURL, *listingID, token, *nBids, *concurrency)
		printSummary("bids", results)
	}
}

func runAdd(client *http.Client, baseURL string, dessertID, qty int, cookieName string, n, concurrency int) []Result {
	type Req struct {
		DessertID int `json:"dessertId"`
		Quantity  int `json:"quantity"`
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			// 不带 cookie，服务端为每个请求签发新购物车
			r := doPOST(client, baseURL+"/cart/add", Req{DessertID: dessertID, Quantity: qty}, nil, "")
			if r.Err == nil {
				r.Cookie = findCookie(r.cookies, cookieName)
			}
			results[idx] = r
		}(i)
	}

	wg.Wait()
	return results
}

// runBids 出价金额互不相同，被接受的出价必须严格递增。
func runBids(client *http.Client, baseURL string, listingID int, token string, n, concurrency int) []Result {
	base := decimal.NewFromInt(1000)
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, n)
	url := fmt.Sprintf("%s/api/listings/%d/bids", baseURL, listingID)

	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			amount := base.Add(decimal.NewFromInt(int64(idx)))
			results[idx] = doPOST(client, url, map[string]string{"amount": amount.StringFixed(2)}, nil, token)
		}(i)
	}

	wg.Wait()
	return results
}

func registerBidder(client *http.Client, baseURL string) (string, error) {
	creds := map[string]string{
		"email":    fmt.Sprintf("loadtest-%d@example.test", time.Now().UnixNano()),
		"password": "loadtest-password",
	}
	env, err := post(client, baseURL+"/api/auth/register", creds, nil, "")
	if err != nil {
		return "", err
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func doPOST(client *http.Client, url string, body any, cookie *http.Cookie, token string) Result {
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(http.MethodPost, url, rd)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return Result{Status: resp.StatusCode, Body: string(b), cookies: resp.Cookies()}
}

// post 发送请求并要求 2xx，返回解析后的响应包。
func post(client *http.Client, url string, body any, cookie *http.Cookie, token string) (envelope, error) {
	var env envelope
	r := doPOST(client, url, body, cookie, token)
	if r.Err != nil {
		return env, r.Err
	}
	if r.Status >= 300 {
		return env, fmt.Errorf("status=%d body=%s", r.Status, r.Body)
	}
	return env, json.Unmarshal([]byte(r.Body), &env)
}

// printSummary 聚合输出不同状态码分布。
func printSummary(name string, results []Result) {
	count := map[int]int{}
	errCount := 0
	for _, r := range results {
		if r.Err != nil {
			errCount++
			continue
		}
		count[r.Status]++
	}
	codes := make([]int, 0, len(count))
	for code := range count {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	fmt.Printf("[%s] http status summary:\n", name)
	for _, code := range codes {
		fmt.Printf("  %d -> %d\n", code, count[code])
	}
	if errCount > 0 {
		fmt.Printf("  errors -> %d\n", errCount)
	}
}

// getStock 读取数据库中的可售数量，用于压测前后校验是否超卖。
func getStock(client *http.Client, baseURL string, dessertID int) (int, error) {
	resp, err := client.Get(fmt.Sprintf("%s/api/desserts/%d", baseURL, dessertID))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("status=%d body=%s", resp.StatusCode, string(b))
	}

	var out struct {
		Data struct {
			Quantity int `json:"quantity"`
		} `json:"data"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return 0, err
	}
	return out.Data.Quantity, nil
}
