/*
 * @module cmd/validation-cli/cmd/query
 * @description 查询校验运行、结果和指标趋势的命令
 * @architecture CLI客户端 - 通过REST API操作校验服务
 * @documentReference ai_docs/validation_engine_req.md
 * @stateFlow 命令解析 -> HTTP查询 -> 输出JSON
 * @rules 查询命令只读，不改变服务端状态
 * @dependencies github.com/spf13/cobra
 * @refs api/controllers/validation_controller.go, api/controllers/metrics_controller.go
 */

package cmd

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

var (
	recentLimit      int
	statusRunID      string
	resultRunID      string
	resultSeverity   string
	resultEntityType string
	trendEntityType  string
	aggregatePeriod  string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "查询校验运行状态",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := callAPI("GET", "/validation/runs/"+statusRunID, nil)
		if err != nil {
			return err
		}
		printData(resp)
		return nil
	},
}

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "查询最近的校验运行",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := callAPI("GET", fmt.Sprintf("/validation/runs?limit=%d", recentLimit), nil)
		if err != nil {
			return err
		}
		printData(resp)
		return nil
	},
}

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "查询运行的校验结果",
	RunE: func(cmd *cobra.Command, args []string) error {
		query := url.Values{}
		if resultSeverity != "" {
			query.Set("severity", resultSeverity)
		}
		if resultEntityType != "" {
			query.Set("entity_type", resultEntityType)
		}

		path := "/validation/runs/" + resultRunID + "/results"
		if encoded := query.Encode(); encoded != "" {
			path += "?" + encoded
		}

		resp, err := callAPI("GET", path, nil)
		if err != nil {
			return err
		}
		printData(resp)
		return nil
	},
}

var activeCmd = &cobra.Command{
	Use:   "active",
	Short: "查询当前执行中的运行",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := callAPI("GET", "/validation/active", nil)
		if err != nil {
			return err
		}
		printData(resp)
		return nil
	},
}

var trendCmd = &cobra.Command{
	Use:   "trend <metric-name>",
	Short: "查询指标趋势",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/validation/metrics/" + url.PathEscape(args[0]) + "/trend"
		if trendEntityType != "" {
			path += "?entity_type=" + url.QueryEscape(trendEntityType)
		}

		resp, err := callAPI("GET", path, nil)
		if err != nil {
			return err
		}
		if len(resp.Data) == 0 || string(resp.Data) == "null" {
			fmt.Println(resp.Msg)
			return nil
		}
		printData(resp)
		return nil
	},
}

var aggregateCmd = &cobra.Command{
	Use:   "aggregate <metric-name>",
	Short: "查询指标周期聚合",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := fmt.Sprintf("/validation/metrics/%s/aggregate?period=%s",
			url.PathEscape(args[0]), url.QueryEscape(aggregatePeriod))

		resp, err := callAPI("GET", path, nil)
		if err != nil {
			return err
		}
		printData(resp)
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusRunID, "run-id", "", "运行ID")
	statusCmd.MarkFlagRequired("run-id")
	recentCmd.Flags().IntVar(&recentLimit, "limit", 10, "返回条数")
	resultsCmd.Flags().StringVar(&resultRunID, "run-id", "", "运行ID")
	resultsCmd.MarkFlagRequired("run-id")
	resultsCmd.Flags().StringVar(&resultSeverity, "severity", "", "按严重级别过滤 (info/warning/error/critical)")
	resultsCmd.Flags().StringVar(&resultEntityType, "entity-type", "", "按实体类型过滤")
	trendCmd.Flags().StringVar(&trendEntityType, "entity-type", "", "按实体类型过滤")
	aggregateCmd.Flags().StringVar(&aggregatePeriod, "period", "daily", "聚合周期 (hourly/daily/weekly/monthly)")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(recentCmd)
	rootCmd.AddCommand(resultsCmd)
	rootCmd.AddCommand(activeCmd)
	rootCmd.AddCommand(trendCmd)
	rootCmd.AddCommand(aggregateCmd)
}
