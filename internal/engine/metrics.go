package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AppliedTotal counts committed transactions by operation.
	AppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lmsr_amm_engine_applied_total",
		Help: "Total number of committed transactions",
	}, []string{"op"})

	// RejectionsTotal counts rejected transactions by operation and error kind.
	RejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lmsr_amm_engine_rejections_total",
		Help: "Total number of rejected transactions",
	}, []string{"op", "kind"})

	// TradeVolume tracks traded value in collateral units.
	TradeVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lmsr_amm_engine_trade_volume",
		Help: "Gross buy cost and sell payout, in collateral units",
	}, []string{"side", "outcome"})

	// FeesCollected tracks fees accrued by recipient.
	FeesCollected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lmsr_amm_engine_fees_collected",
		Help: "Trading fees accrued, in collateral units",
	}, []string{"recipient"})

	// MarketsCreated counts created markets.
	MarketsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lmsr_amm_engine_markets_created_total",
		Help: "Total number of markets created",
	})

	// MarketsResolved counts resolved markets by how the outcome was decided.
	MarketsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lmsr_amm_engine_markets_resolved_total",
		Help: "Total number of markets resolved",
	}, []string{"source"})
)
