package cache

import (
	"fmt"
	"strings"
)

func KeyWeather(airport string) string {
	return fmt.Sprintf("weather:%s", strings.ToUpper(airport))
}
