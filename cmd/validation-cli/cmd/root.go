/*
 * @module cmd/validation-cli/cmd/root
 * @description 校验服务命令行入口，封装服务HTTP API的调用
 * @architecture CLI客户端 - 通过REST API操作校验服务
 * @documentReference ai_docs/validation_engine_req.md
 * @stateFlow 命令解析 -> HTTP请求 -> 解析APIResponse -> 输出结果
 * @rules 服务端返回非0状态码时命令以退出码1结束
 * @dependencies github.com/spf13/cobra, net/http
 * @refs api/routes.go
 */

package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	apiURL  string
	apiKey  string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "validation-cli",
	Short: "志愿者数据校验服务命令行工具",
	Long: `志愿者数据校验服务命令行工具，通过HTTP API发起校验运行、
查询运行状态和结果、取消执行中的运行。

服务地址通过 --api-url 或环境变量 VALIDATION_API_URL 指定。`,
	SilenceUsage: true,
}

// Execute 执行根命令
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	defaultURL := os.Getenv("VALIDATION_API_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", defaultURL, "校验服务地址")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("VALIDATION_API_KEY"), "API Key")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "输出完整响应")
}

// apiResponse 服务端统一响应结构
type apiResponse struct {
	Status int             `json:"status"`
	Msg    string          `json:"msg"`
	Data   json.RawMessage `json:"data"`
}

// callAPI 调用服务端接口并解析统一响应
// 慢速校验同步执行可能耗时较长，客户端超时放宽到30分钟
func callAPI(method, path string, body interface{}) (*apiResponse, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("序列化请求失败: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, apiURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Name", "cli")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	client := &http.Client{Timeout: 30 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求服务失败: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("解析响应失败: %v, 响应: %s", err, string(respBody))
	}

	if apiResp.Status != 0 {
		return &apiResp, fmt.Errorf("%s", apiResp.Msg)
	}
	return &apiResp, nil
}

// printData 以缩进JSON输出响应数据
func printData(resp *apiResponse) {
	if verbose {
		fmt.Println(resp.Msg)
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, resp.Data, "", "  "); err != nil {
		fmt.Println(string(resp.Data))
		return
	}
	fmt.Println(buf.String())
}
