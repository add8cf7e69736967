/*
 * @module service/validation/script_executor
 * @description 自定义规则脚本执行器，基于 yaegi 解释执行，带编译缓存
 * @architecture 分层架构 - 校验服务层
 * @documentReference ai_docs/validation_engine_req.md
 * @stateFlow 脚本内容哈希查缓存 -> 未命中则编译并缓存 -> 按记录调用 Run 函数
 * @rules 脚本需定义 Run(record map[string]interface{}) (bool, string)；同一脚本只编译一次
 * @dependencies github.com/traefik/yaegi, crypto/sha1, sync
 * @refs service/validation/business_rule_validator.go
 */

package validation

import (
	"crypto/sha1"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// ScriptExecutor 规则脚本执行器，进程内共享一个实例
type ScriptExecutor struct {
	mu    sync.RWMutex
	cache map[string]*compiledRuleScript
}

// compiledRuleScript 编译后的规则脚本
type compiledRuleScript struct {
	fn       func(map[string]interface{}) (bool, string)
	compiled time.Time
	hash     string
}

// NewScriptExecutor 创建脚本执行器
func NewScriptExecutor() *ScriptExecutor {
	return &ScriptExecutor{
		cache: make(map[string]*compiledRuleScript),
	}
}

// Execute 对单条记录执行规则脚本，返回 (是否通过, 失败消息)
func (e *ScriptExecutor) Execute(script string, record map[string]interface{}) (bool, string, error) {
	hash := fmt.Sprintf("%x", sha1.Sum([]byte(script)))

	e.mu.RLock()
	compiled, ok := e.cache[hash]
	e.mu.RUnlock()

	if !ok {
		var err error
		compiled, err = e.compile(script, hash)
		if err != nil {
			return false, "", fmt.Errorf("规则脚本编译失败: %w", err)
		}

		e.mu.Lock()
		e.cache[hash] = compiled
		e.mu.Unlock()
	}

	passed, message := compiled.fn(record)
	return passed, message, nil
}

// compile 编译脚本为可调用函数
// 脚本只需包含 Run 函数定义和辅助函数，包声明由执行器补齐
func (e *ScriptExecutor) compile(script, hash string) (*compiledRuleScript, error) {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("加载标准库失败: %w", err)
	}

	source := script
	if !strings.HasPrefix(strings.TrimSpace(source), "package ") {
		source = "package rules\n\n" + source
	}

	if _, err := i.Eval(source); err != nil {
		return nil, fmt.Errorf("脚本求值失败: %w", err)
	}

	v, err := i.Eval("rules.Run")
	if err != nil {
		return nil, fmt.Errorf("脚本缺少 Run 入口: %w", err)
	}
	fn, ok := v.Interface().(func(map[string]interface{}) (bool, string))
	if !ok {
		return nil, fmt.Errorf("Run 函数签名不符，期望 func(map[string]interface{}) (bool, string)")
	}

	return &compiledRuleScript{
		fn:       fn,
		compiled: time.Now(),
		hash:     hash,
	}, nil
}
