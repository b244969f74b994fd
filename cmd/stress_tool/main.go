package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"meal_voucher/internal/pkg/config"
	"meal_voucher/pkg/utils"
)

// 并发核销压测：余额 K 张券时发起 K+extra 个并发核销，成功数必须等于 K
var (
	baseURL    = flag.String("base", "http://localhost:8080", "server base url")
	userID     = flag.String("user", "", "user id whose vouchers are redeemed")
	extra      = flag.Int("extra", 1, "requests beyond the usable balance")
	mealWindow = flag.String("window", "LUNCH", "meal window")

	httpClient *http.Client
)

func init() {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 2000
	t.MaxIdleConnsPerHost = 2000
	t.MaxConnsPerHost = 2000
	httpClient = &http.Client{
		Transport: t,
		Timeout:   10 * time.Second,
	}
}

type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func main() {
	flag.Parse()
	if *userID == "" {
		fmt.Println("-user is required")
		return
	}

	// 使用服务端同一份 JWT 密钥签发用户 token
	config.LoadConfig()
	token, _, err := utils.GenerateToken(*userID, utils.RoleUser)
	if err != nil {
		fmt.Printf("签发 token 失败: %v\n", err)
		return
	}

	// 1. 查询可用余额
	balance, err := usableBalance(token)
	if err != nil {
		fmt.Printf("查询余额失败: %v\n", err)
		return
	}
	total := int(balance) + *extra
	fmt.Printf("开始压测：用户 %s 可用 %d 张券，并发 %d 个核销请求...\n", *userID, balance, total)

	// 2. 并发核销，每个请求一张券
	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		successCount int
		insufficient int
		otherFail    int
	)
	start := time.Now()
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			code, err := redeem(token, fmt.Sprintf("stress-%d-%d", start.UnixNano(), n))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				otherFail++
			case code == http.StatusOK:
				successCount++
			case code == http.StatusConflict:
				insufficient++
			default:
				otherFail++
			}
		}(i)
	}
	wg.Wait()
	duration := time.Since(start)

	after, _ := usableBalance(token)

	fmt.Println("--------------------------------------------------")
	fmt.Printf("压测结束，耗时: %v\n", duration)
	fmt.Printf("QPS: %.2f\n", float64(total)/duration.Seconds())
	fmt.Printf("核销成功: %d (预期: %d)\n", successCount, balance)
	fmt.Printf("余额不足: %d (预期: %d)\n", insufficient, *extra)
	fmt.Printf("其他失败: %d\n", otherFail)
	fmt.Printf("剩余余额: %d (预期: 0)\n", after)
	if int64(successCount) != balance || after != 0 {
		fmt.Println("结果异常：存在重复核销或漏核销")
	}
	fmt.Println("--------------------------------------------------")
}

func usableBalance(token string) (int64, error) {
	req, _ := http.NewRequest(http.MethodGet, *baseURL+"/vouchers/balance", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var result apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, err
	}
	if result.Code != 0 {
		return 0, fmt.Errorf("code %d: %s", result.Code, result.Message)
	}
	var balance struct {
		Usable int64 `json:"usable"`
	}
	if err := json.Unmarshal(result.Data, &balance); err != nil {
		return 0, err
	}
	return balance.Usable, nil
}

func redeem(token, orderID string) (int, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"voucherCount": 1,
		"mealWindow":   *mealWindow,
		"orderId":      orderID,
		"kitchenId":    "stress-kitchen",
	})
	req, _ := http.NewRequest(http.MethodPost, *baseURL+"/vouchers/redeem", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
