package types

// BandPowers holds Welch-PSD band power estimates for one EEG channel.
type BandPowers struct {
	Delta float64 `json:"delta"`
	Theta float64 `json:"theta"`
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
	Gamma float64 `json:"gamma"`
}

// EEGIndices are the derived cognitive/affective indices defined in the
// Glossary, computed from left/right band powers.
type EEGIndices struct {
	Focus                float64 `json:"focus"`
	Relaxation           float64 `json:"relaxation"`
	Stress               float64 `json:"stress"`
	HemisphericBalance   float64 `json:"hemispheric_balance"`
	CognitiveLoad        float64 `json:"cognitive_load"`
	EmotionalStability   float64 `json:"emotional_stability"`
	TotalPower           float64 `json:"total_power"`
}

// EEGWindow is the processed output of one EEG pipeline tick. Immutable
// once constructed; shared by reference across the bus and recorder.
type EEGWindow struct {
	WindowStart   float64       `json:"window_start"`
	WindowEnd     float64       `json:"window_end"`
	FilteredCH1   []float64     `json:"filtered_ch1"`
	FilteredCH2   []float64     `json:"filtered_ch2"`
	SQICH1        []float64     `json:"sqi_ch1"`
	SQICH2        []float64     `json:"sqi_ch2"`
	BandPowersCH1 BandPowers    `json:"band_powers_ch1"`
	BandPowersCH2 BandPowers    `json:"band_powers_ch2"`
	Indices       EEGIndices    `json:"indices"`
	SignalQuality SignalQuality `json:"signal_quality"`
}

// HRVIndices are the heart-rate-variability indices defined in the Glossary.
type HRVIndices struct {
	BPM   float64 `json:"bpm"`
	SDNN  float64 `json:"sdnn"`
	RMSSD float64 `json:"rmssd"`
	PNN50 float64 `json:"pnn50"`
	SDSD  float64 `json:"sdsd"`
	LF    float64 `json:"lf"`
	HF    float64 `json:"hf"`
	LFHF  float64 `json:"lf_hf"`
	SD1   float64 `json:"sd1"`
	SD2   float64 `json:"sd2"`
}

// PPGWindow is the processed output of one PPG pipeline tick.
type PPGWindow struct {
	WindowStart   float64       `json:"window_start"`
	WindowEnd     float64       `json:"window_end"`
	Filtered      []float64     `json:"filtered"`
	SQI           []float64     `json:"sqi"`
	HRV           HRVIndices    `json:"hrv"`
	RedMean       float64       `json:"red_mean"`
	IRMean        float64       `json:"ir_mean"`
	SignalQuality SignalQuality `json:"signal_quality"`
}

// ACCWindow is the processed output of one ACC pipeline tick.
type ACCWindow struct {
	WindowStart   float64            `json:"window_start"`
	WindowEnd     float64            `json:"window_end"`
	DeltaX        float64            `json:"delta_x"`
	DeltaY        float64            `json:"delta_y"`
	DeltaZ        float64            `json:"delta_z"`
	AvgMagnitude  float64            `json:"avg_magnitude"`
	StdMagnitude  float64            `json:"std_magnitude"`
	MaxMagnitude  float64            `json:"max_magnitude"`
	Activity      ActivityState      `json:"activity"`
	SignalQuality SignalQuality      `json:"signal_quality"`
}

// BatteryWindow is the trivial "processed" output emitted by the battery
// pipeline at its own cadence: the latest reading, passed through.
type BatteryWindow struct {
	TS      float64 `json:"ts"`
	Percent float64 `json:"level_percent"`
}
