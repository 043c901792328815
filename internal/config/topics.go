package config

const (
	// TopicIngestTask is the NSQ topic carrying document ingestion jobs.
	TopicIngestTask = "ingest.task"

	// ChannelOrchestrator is the consumer channel the ingestion worker pool reads from.
	ChannelOrchestrator = "orchestrator"
)
