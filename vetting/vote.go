package vetting

// Vote is one source's opinion about a URL.
type Vote string

const (
	VoteMalicious  Vote = "malicious"
	VoteBenign     Vote = "benign"
	VoteSuspicious Vote = "suspicious"
	// VoteUnknown means the source answered but had nothing to go on.
	VoteUnknown Vote = "unknown"
	// VoteError means the source could not be consulted.
	VoteError Vote = "error"
)

// Source names used in external_checks and the fusion summary.
const (
	SourceModel        = "model"
	SourceRegistration = "registration"
	SourceThreatList   = "threat_list"
	SourceScanEngine   = "scan_engine"
)

// Votes are the four opinions fused into a final verdict.
type Votes struct {
	Model        Vote
	Registration Vote
	ThreatList   Vote
	ScanEngine   Vote
}

type namedVote struct {
	source string
	vote   Vote
}

func (v Votes) named() [4]namedVote {
	return [4]namedVote{
		{SourceModel, v.Model},
		{SourceRegistration, v.Registration},
		{SourceThreatList, v.ThreatList},
		{SourceScanEngine, v.ScanEngine},
	}
}

// ModelVote buckets a classifier label. Unrecognized labels, including
// "unknown", are suspicious.
func ModelVote(label string) Vote {
	switch label {
	case "phishing", "malware", "defacement":
		return VoteMalicious
	case "benign":
		return VoteBenign
	default:
		return VoteSuspicious
	}
}
