package geocode

import (
	"fmt"
	"net/url"
	"strconv"
)

const kakaoMapBase = "https://map.kakao.com"

// MapLink opens Kakao Map with a pin at the coordinates.
func MapLink(name string, lat, lng float64) string {
	return fmt.Sprintf("%s/link/map/%s,%s,%s", kakaoMapBase, url.PathEscape(name), coord(lat), coord(lng))
}

// DirectionsLink opens Kakao Map directions to the coordinates.
func DirectionsLink(name string, lat, lng float64) string {
	return fmt.Sprintf("%s/link/to/%s,%s,%s", kakaoMapBase, url.PathEscape(name), coord(lat), coord(lng))
}

// SearchLink opens the Kakao Map search results page for a free-text query.
func SearchLink(query string) string {
	return kakaoMapBase + "/?q=" + url.QueryEscape(query)
}

func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
