package constant

const (
	DevelopmentEnvironment = "development"
	ProductionEnvironment  = "production"
)

const (
	CopyActionQueueGroup = "copy_action_group"

	CopyActionStreamName            = "copy_action"
	CopyActionStreamSubjectAll      = "copy_action.*"
	CopyActionStreamSubjectRecorded = "copy_action.recorded"
)

const OrdersChannel = "orders"
