package observability

const (
	MUsecaseRequests         MetricKey = "usecase_requests_total"
	MUsecaseDuration         MetricKey = "usecase_duration_seconds"
	MHTTPRequests            MetricKey = "http_requests_total"
	MHTTPRequestDuration     MetricKey = "http_request_duration_seconds"
	MExternalRequests        MetricKey = "external_requests_total"
	MExternalRequestDuration MetricKey = "external_request_duration_seconds"
	MGatewayMessages         MetricKey = "gateway_messages_total"
	MDeadLetters             MetricKey = "dead_letters_total"
	MProjectionSync          MetricKey = "projection_sync_total"
	MFlashSaleAnomalies      MetricKey = "flash_sale_anomalies_total"
)
