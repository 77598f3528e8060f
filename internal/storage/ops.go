package storage

// Op names a logical storage operation. Repositories tag every call with one
// so traces and logs share a flat, query-free vocabulary.
type Op string

const (
	OpEventsEnqueue       Op = "EventsEnqueue"
	OpEventsIngest        Op = "EventsIngest"
	OpEventsClaim         Op = "EventsClaim"
	OpEventsMarkProcessed Op = "EventsMarkProcessed"
	OpEventsMarkFailed    Op = "EventsMarkFailed"
	OpEventsPeek          Op = "EventsPeek"
	OpEventsRequeue       Op = "EventsRequeue"
	OpEventsCleanup       Op = "EventsCleanup"
	OpEventsStats         Op = "EventsStats"

	OpCalcCr   Op = "CalcCr"
	OpEvalRisk Op = "EvalRisk"

	OpAssetUpsert     Op = "AssetUpsert"
	OpAssetGet        Op = "AssetGet"
	OpLedgerGet       Op = "LedgerGet"
	OpLedgerUpsert    Op = "LedgerUpsert"
	OpLedgerList      Op = "LedgerList"
	OpAnalyticsUpsert Op = "AnalyticsUpsert"
	OpPolicyUpsert    Op = "PolicyUpsert"
	OpPolicyGet       Op = "PolicyGet"

	OpAnalyticsAssetSummary  Op = "AnalyticsAssetSummary"
	OpAnalyticsTopAssetsByCr Op = "AnalyticsTopAssetsByCr"

	OpMeasurementInsertBatch Op = "MeasurementInsertBatch"
	OpMeasurementLatest      Op = "MeasurementLatest"
	OpMeasurementLockAsset   Op = "MeasurementLockAsset"
	OpOutboxInsert           Op = "OutboxInsert"
	OpOutboxPending          Op = "OutboxPending"
	OpOutboxMarkPublished    Op = "OutboxMarkPublished"
	OpOutboxMarkFailed       Op = "OutboxMarkFailed"
)
