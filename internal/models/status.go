package models

// Progress texts shown to the user while a tool runs.
const (
	StatusAnalyzing   = "요청 분석 중.."
	StatusBuildingMap = "지도 데이터 구성 중.."
	StatusWebSearch   = "웹 정보 확인 중.."
	StatusCafeSearch  = "맘카페 후기 검색 중..."
	StatusGeocoding   = "위치 확인 중.."
)

// StatusFor returns the progress text shown while a secondary source is searched.
func StatusFor(s Source) string {
	switch s {
	case SourceWeb:
		return StatusWebSearch
	case SourceCafe:
		return StatusCafeSearch
	}
	return StatusAnalyzing
}
