package mix

// SegmentEffects are opaque knobs; only range clamps apply.
type SegmentEffects struct {
	ReverbAmount  float64 `json:"reverb_amount"`
	DelayMS       int     `json:"delay_ms"`
	DelayFeedback float64 `json:"delay_feedback"`
}

type SegmentEQ struct {
	LowGainDB  float64 `json:"low_gain_db"`
	MidGainDB  float64 `json:"mid_gain_db"`
	HighGainDB float64 `json:"high_gain_db"`
}

// TimelineSegment is one trimmed slice of a source track in the output mix.
// Order is always derived from position, never taken from the client.
type TimelineSegment struct {
	ID                    string         `json:"id"`
	Order                 int            `json:"order"`
	SegmentName           string         `json:"segment_name"`
	TrackIndex            int            `json:"track_index"`
	TrackID               string         `json:"track_id"`
	TrackTitle            string         `json:"track_title,omitempty"`
	StartMS               int64          `json:"start_ms"`
	EndMS                 int64          `json:"end_ms"`
	DurationMS            int64          `json:"duration_ms"`
	CrossfadeAfterSeconds float64        `json:"crossfade_after_seconds"`
	Effects               SegmentEffects `json:"effects"`
	EQ                    SegmentEQ      `json:"eq"`
}
