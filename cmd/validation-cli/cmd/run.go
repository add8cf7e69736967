/*
 * @module cmd/validation-cli/cmd/run
 * @description 发起和取消校验运行的命令
 * @architecture CLI客户端 - 通过REST API操作校验服务
 * @documentReference ai_docs/validation_engine_req.md
 * @stateFlow 命令解析 -> 同步执行运行 -> 输出运行汇总
 * @rules 运行终态非completed时以退出码1结束
 * @dependencies github.com/spf13/cobra
 * @refs api/controllers/validation_controller.go
 */

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// runSummary 运行汇总，取自服务端的ValidationRun
type runSummary struct {
	ID                   string  `json:"id"`
	RunType              string  `json:"run_type"`
	Name                 string  `json:"name"`
	Status               string  `json:"status"`
	TotalChecks          int     `json:"total_checks"`
	PassedChecks         int     `json:"passed_checks"`
	FailedChecks         int     `json:"failed_checks"`
	WarningCount         int     `json:"warning_count"`
	ErrorCount           int     `json:"error_count"`
	CriticalIssues       int     `json:"critical_issues"`
	ExecutionTimeSeconds float64 `json:"execution_time_seconds"`
	ErrorMessage         string  `json:"error_message"`
}

var fastCmd = &cobra.Command{
	Use:   "fast",
	Short: "发起快速校验（仅数量比对）",
	RunE: func(cmd *cobra.Command, args []string) error {
		return triggerRun("/validation/fast")
	},
}

var slowCmd = &cobra.Command{
	Use:   "slow",
	Short: "发起完整校验（全部校验器）",
	RunE: func(cmd *cobra.Command, args []string) error {
		return triggerRun("/validation/slow")
	},
}

var comprehensiveCmd = &cobra.Command{
	Use:   "comprehensive <entity-type>",
	Short: "对单个实体类型发起综合校验",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return triggerRun("/validation/comprehensive/" + args[0])
	},
}

var (
	countEntityType        string
	completenessEntityType string
)

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "对单个实体类型发起数量比对校验",
	RunE: func(cmd *cobra.Command, args []string) error {
		return triggerRun("/validation/custom/" + countEntityType + "?validators=count")
	},
}

var fieldCompletenessCmd = &cobra.Command{
	Use:   "field-completeness",
	Short: "对单个实体类型发起字段完整性校验",
	RunE: func(cmd *cobra.Command, args []string) error {
		return triggerRun("/validation/custom/" + completenessEntityType + "?validators=completeness")
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <run-id>",
	Short: "取消执行中的校验运行",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := callAPI("POST", "/validation/runs/"+args[0]+"/cancel", nil)
		if err != nil {
			return err
		}
		fmt.Println(resp.Msg)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fastCmd)
	rootCmd.AddCommand(slowCmd)
	rootCmd.AddCommand(comprehensiveCmd)

	countCmd.Flags().StringVar(&countEntityType, "entity-type", "", "实体类型")
	countCmd.MarkFlagRequired("entity-type")
	rootCmd.AddCommand(countCmd)

	fieldCompletenessCmd.Flags().StringVar(&completenessEntityType, "entity-type", "", "实体类型")
	fieldCompletenessCmd.MarkFlagRequired("entity-type")
	rootCmd.AddCommand(fieldCompletenessCmd)

	rootCmd.AddCommand(cancelCmd)
}

func triggerRun(path string) error {
	resp, err := callAPI("POST", path, nil)
	if err != nil {
		return err
	}

	var run runSummary
	if err := json.Unmarshal(resp.Data, &run); err != nil {
		printData(resp)
		return nil
	}
	printRunSummary(&run)

	if run.Status != "completed" {
		return fmt.Errorf("运行终态为 %s", run.Status)
	}
	return nil
}

func printRunSummary(run *runSummary) {
	fmt.Printf("运行ID:   %s\n", run.ID)
	fmt.Printf("类型:     %s (%s)\n", run.RunType, run.Name)
	fmt.Printf("状态:     %s\n", run.Status)
	fmt.Printf("检查总数: %d\n", run.TotalChecks)
	fmt.Printf("  通过    %d\n", run.PassedChecks)
	fmt.Printf("  失败    %d\n", run.FailedChecks)
	fmt.Printf("  警告    %d\n", run.WarningCount)
	fmt.Printf("  错误    %d\n", run.ErrorCount)
	fmt.Printf("  严重    %d\n", run.CriticalIssues)
	fmt.Printf("耗时:     %.2fs\n", run.ExecutionTimeSeconds)
	if run.ErrorMessage != "" {
		fmt.Printf("错误信息: %s\n", run.ErrorMessage)
	}
}
