package types

// Direction is a point of the 8-point compass describing swell or wind origin.
type Direction string

const (
	DirectionN  Direction = "N"
	DirectionNE Direction = "NE"
	DirectionE  Direction = "E"
	DirectionSE Direction = "SE"
	DirectionS  Direction = "S"
	DirectionSW Direction = "SW"
	DirectionW  Direction = "W"
	DirectionNW Direction = "NW"
)

// CompassDirections lists every Direction in declaration order. The order is
// significant: signal extraction returns the first match in this order and
// degree conversion indexes into it.
var CompassDirections = []Direction{
	DirectionN, DirectionNE, DirectionE, DirectionSE,
	DirectionS, DirectionSW, DirectionW, DirectionNW,
}

// IsValid reports whether d is one of the 8 compass points.
func (d Direction) IsValid() bool {
	for _, c := range CompassDirections {
		if d == c {
			return true
		}
	}
	return false
}

// UserLevel is the surfer's self-declared skill level.
type UserLevel string

const (
	LevelBeginner     UserLevel = "BEGINNER"
	LevelIntermediate UserLevel = "INTERMEDIATE"
	LevelAdvanced     UserLevel = "ADVANCED"
)

// Objective is the session goal; it scales wind-penalty sensitivity.
type Objective string

const (
	ObjectiveFun      Objective = "FUN"
	ObjectiveTraining Objective = "TRAINING"
)

// ReasonType classifies an explanatory reason attached to a recommendation.
type ReasonType string

const (
	ReasonSwell ReasonType = "SWELL"
	ReasonWind  ReasonType = "WIND"
	ReasonOther ReasonType = "OTHER"
)

// RiskType classifies a cautionary advisory attached to a recommendation.
type RiskType string

const (
	RiskStrongWind     RiskType = "STRONG_WIND"
	RiskTooBigForLevel RiskType = "TOO_BIG_FOR_LEVEL"
	RiskLowConfidence  RiskType = "LOW_CONFIDENCE"
	RiskSpotNote       RiskType = "SPOT_NOTE"
)

// ForecastSourceName identifies the upstream provider a sample came from.
type ForecastSourceName string

const (
	SourceStormglass ForecastSourceName = "STORMGLASS"
	SourceManual     ForecastSourceName = "MANUAL"
	SourceSeed       ForecastSourceName = "SEED"
)
