package redis

import "fmt"

// LatestReadingKey is the cache key for the newest reading of a sensor.
// Pattern: ruuvi:latest:{sensor_mac}
func LatestReadingKey(sensorMAC string) string {
	return fmt.Sprintf("ruuvi:latest:%s", sensorMAC)
}
