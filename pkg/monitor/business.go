package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics 定义业务监控指标
type BusinessMetrics struct {
	SettlementsTotal      *prometheus.CounterVec
	PayoutAmountTotal     *prometheus.CounterVec
	TransfersTotal        *prometheus.CounterVec
	CorruptionGuardTotal  prometheus.Counter
	ApprovalClaimsTotal   *prometheus.CounterVec
	AllocationClaimsTotal *prometheus.CounterVec
	DirectoryFailures     prometheus.Counter
	StaleApprovals        prometheus.Gauge
	OutboxPending         prometheus.Gauge
}

// Business 未初始化时为 nil, 下面的辅助函数会直接跳过 (单元测试不注册指标)
var Business *BusinessMetrics

// InitBusinessMetrics 初始化业务指标
func InitBusinessMetrics() {
	Business = &BusinessMetrics{
		SettlementsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_runs_total",
			Help: "Settlement pipeline runs by game kind and result",
		}, []string{"kind", "result"}),
		PayoutAmountTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_payout_amount_total",
			Help: "Total amount of tokens paid out",
		}, []string{"token"}),
		TransfersTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_transfers_total",
			Help: "Token transfers by result",
		}, []string{"result"}),
		CorruptionGuardTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "settlement_corruption_guard_total",
			Help: "Settlements aborted because transfer count did not match winner count",
		}),
		ApprovalClaimsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "approval_claims_total",
			Help: "Approval claim outcomes",
		}, []string{"outcome"}),
		AllocationClaimsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "allocation_claims_total",
			Help: "Tier window claim outcomes",
		}, []string{"outcome"}),
		DirectoryFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "directory_lookup_failures_total",
			Help: "Upstream identity directory failures",
		}),
		StaleApprovals: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "approval_stale_requests",
			Help: "Approved requests with no created resource after the grace period",
		}),
		OutboxPending: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_messages",
			Help: "Outbox messages waiting to be relayed",
		}),
	}
}

func ObserveSettlement(kind, result string) {
	if Business == nil {
		return
	}
	Business.SettlementsTotal.WithLabelValues(kind, result).Inc()
}

func ObservePayout(token string, amount float64) {
	if Business == nil {
		return
	}
	Business.PayoutAmountTotal.WithLabelValues(token).Add(amount)
}

func ObserveTransfer(result string) {
	if Business == nil {
		return
	}
	Business.TransfersTotal.WithLabelValues(result).Inc()
}

func ObserveCorruptionGuard() {
	if Business == nil {
		return
	}
	Business.CorruptionGuardTotal.Inc()
}

func ObserveApprovalClaim(outcome string) {
	if Business == nil {
		return
	}
	Business.ApprovalClaimsTotal.WithLabelValues(outcome).Inc()
}

func ObserveAllocationClaim(outcome string) {
	if Business == nil {
		return
	}
	Business.AllocationClaimsTotal.WithLabelValues(outcome).Inc()
}

func ObserveDirectoryFailure() {
	if Business == nil {
		return
	}
	Business.DirectoryFailures.Inc()
}

func SetStaleApprovals(n int64) {
	if Business == nil {
		return
	}
	Business.StaleApprovals.Set(float64(n))
}

func SetOutboxPending(n int64) {
	if Business == nil {
		return
	}
	Business.OutboxPending.Set(float64(n))
}
