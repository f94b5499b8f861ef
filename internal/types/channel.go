package types

// Channel is the closed set of WebSocket Bus pub/sub topics.
type Channel string

const (
	ChannelRawEEG             Channel = "raw_eeg"
	ChannelRawPPG             Channel = "raw_ppg"
	ChannelRawACC             Channel = "raw_acc"
	ChannelProcessedEEG       Channel = "processed_eeg"
	ChannelProcessedPPG       Channel = "processed_ppg"
	ChannelProcessedACC       Channel = "processed_acc"
	ChannelBattery            Channel = "battery"
	ChannelDeviceInfo         Channel = "device_info"
	ChannelMonitoringMetrics  Channel = "monitoring_metrics"
	ChannelEvent              Channel = "event"
)

// Valid reports whether ch is one of the closed set of known channels.
func (ch Channel) Valid() bool {
	switch ch {
	case ChannelRawEEG, ChannelRawPPG, ChannelRawACC,
		ChannelProcessedEEG, ChannelProcessedPPG, ChannelProcessedACC,
		ChannelBattery, ChannelDeviceInfo, ChannelMonitoringMetrics, ChannelEvent:
		return true
	default:
		return false
	}
}

// MessageType is the closed set of server-to-client (and a couple of
// client-to-server) WebSocket envelope kinds.
type MessageType string

const (
	MessageRawData                MessageType = "raw_data"
	MessageProcessedData          MessageType = "processed_data"
	MessageSensorData             MessageType = "sensor_data"
	MessageEvent                  MessageType = "event"
	MessagePong                   MessageType = "pong"
	MessageHealthCheckResponse    MessageType = "health_check_response"
	MessageSubscriptionConfirmed  MessageType = "subscription_confirmed"
	MessageError                  MessageType = "error"
)

// CommandType is the closed set of client-to-server command frames.
type CommandType string

const (
	CommandSubscribe       CommandType = "subscribe"
	CommandUnsubscribe     CommandType = "unsubscribe"
	CommandPing            CommandType = "ping"
	CommandHealthCheck     CommandType = "health_check"
	CommandScanDevices     CommandType = "scan_devices"
	CommandConnectDevice   CommandType = "connect_device"
	CommandDisconnectDevice CommandType = "disconnect_device"
	CommandStartStreaming  CommandType = "start_streaming"
	CommandStopStreaming   CommandType = "stop_streaming"
)
