/*
 * @module service/validation/count_validator_test
 * @description 记录数量比对校验器单元测试
 * @architecture 测试层 - 单元测试
 */

package validation

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vms-validation-service/client"
	"vms-validation-service/service/localstore"
	"vms-validation-service/service/models"
	"vms-validation-service/testutil"
)

// TestDiscrepancyPercentage 偏差百分比以本地记录数为分母，下限为1
func TestDiscrepancyPercentage(t *testing.T) {
	assert.InDelta(t, 2.0, discrepancyPercentage(100, 98), 0.001)
	assert.InDelta(t, 12.0, discrepancyPercentage(100, 88), 0.001)
	assert.InDelta(t, 0.0, discrepancyPercentage(0, 0), 0.001)
	assert.InDelta(t, 500.0, discrepancyPercentage(0, 5), 0.001, "本地为0时分母取1")
	assert.InDelta(t, 50.0, discrepancyPercentage(10, 15), 0.001)
}

// TestCountSeverity 偏差按容差的1/2/5倍分级，边界值取低档
func TestCountSeverity(t *testing.T) {
	config := DefaultConfig()
	config.CountTolerance = 5.0
	v := &CountValidator{config: config}

	cases := []struct {
		diffPct  float64
		expected models.Severity
	}{
		{0, models.SeverityInfo},
		{5.0, models.SeverityInfo},
		{5.01, models.SeverityWarning},
		{10.0, models.SeverityWarning},
		{10.01, models.SeverityError},
		{25.0, models.SeverityError},
		{25.01, models.SeverityCritical},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.expected, v.countSeverity("volunteer", tc.diffPct),
			"偏差 %.2f%% 分级错误", tc.diffPct)
	}

	// event 实体的会话数据同步时会被过滤，任何偏差都是 info
	assert.Equal(t, models.SeverityInfo, v.countSeverity("event", 80.0))
}

// newCountTestStore 在sqlite中建出志愿者表并插入指定行数
func newCountTestStore(t *testing.T, rows int) (*testutil.TestDB, *localstore.Store) {
	tdb := testutil.NewTestDB()
	t.Cleanup(tdb.Close)

	require.NoError(t, tdb.DB.Exec(`CREATE TABLE volunteers (id TEXT PRIMARY KEY, "FirstName" TEXT)`).Error)
	for i := 0; i < rows; i++ {
		require.NoError(t, tdb.DB.Exec(
			`INSERT INTO volunteers (id, "FirstName") VALUES (?, ?)`,
			fmt.Sprintf("v%03d", i), "Test").Error)
	}
	return tdb, localstore.NewStore(tdb.DB)
}

// newFakeCRM 返回固定计数的CRM查询端点
func newFakeCRM(t *testing.T, totalSize int64) *client.SalesforceClient {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"totalSize": %d, "done": true, "records": []}`, totalSize)
	}))
	t.Cleanup(server.Close)
	return client.NewSalesforceClientForEndpoint(server.URL, "test-token")
}

// TestCountValidatorValidate 端到端：本地100条 CRM98条 容差5% -> 偏差2% info
func TestCountValidatorValidate(t *testing.T) {
	_, store := newCountTestStore(t, 100)
	sf := newFakeCRM(t, 98)

	config := DefaultConfig()
	config.CountTolerance = 5.0
	config.EntityTypes = []string{"volunteer"}

	v := NewCountValidator(config, store, sf)
	results, metrics, err := v.Validate(context.Background())
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, models.SeverityInfo, results[0].Severity)
	assert.Equal(t, "count_match", results[0].RuleName)
	assert.Equal(t, "98", results[0].ExpectedValue)
	assert.Equal(t, "100", results[0].ActualValue)

	// 每实体3条指标加一条整体成功率
	require.Len(t, metrics, 4)
	byName := map[string]models.ValidationMetric{}
	for _, m := range metrics {
		byName[m.MetricName] = m
	}
	assert.InDelta(t, 100, byName["volunteer_local_count"].MetricValue, 0.001)
	assert.InDelta(t, 98, byName["volunteer_crm_count"].MetricValue, 0.001)
	assert.InDelta(t, 2.0, byName["volunteer_count_discrepancy"].MetricValue, 0.001)
	assert.InDelta(t, 100.0, byName["count_validation_success_rate"].MetricValue, 0.001)
}

// TestCountValidatorLargeDiscrepancy 本地100条 CRM88条 -> 偏差12% error
func TestCountValidatorLargeDiscrepancy(t *testing.T) {
	_, store := newCountTestStore(t, 100)
	sf := newFakeCRM(t, 88)

	config := DefaultConfig()
	config.CountTolerance = 5.0
	config.EntityTypes = []string{"volunteer"}

	results, _, err := NewCountValidator(config, store, sf).Validate(context.Background())
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, models.SeverityError, results[0].Severity)
}

// TestCountValidatorAuthError CRM认证失败应中止校验并传播错误
func TestCountValidatorAuthError(t *testing.T) {
	_, store := newCountTestStore(t, 10)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message": "Session expired"}`)
	}))
	t.Cleanup(server.Close)
	sf := client.NewSalesforceClientForEndpoint(server.URL, "expired-token")

	config := DefaultConfig()
	config.EntityTypes = []string{"volunteer"}

	_, _, err := NewCountValidator(config, store, sf).Validate(context.Background())
	require.Error(t, err)
	assert.True(t, client.IsAuthError(err), "应传播认证错误")
}
