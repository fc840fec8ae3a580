package testutils

import (
	"encoding/json"

	"github.com/srg/myolink/internal/hand"
)

type InfoJSONFull struct {
	Name     string   `json:"name"`
	Model    string   `json:"model"`
	Firmware string   `json:"firmware"`
	Serial   string   `json:"serial"`
	Muscles  []string `json:"muscles"`
	Joints   []string `json:"joints"`
	IMUs     int      `json:"imus"`
}

type AdvertisementJSON struct {
	Address   string `json:"address"`
	Name      string `json:"name"`
	Model     string `json:"model"`
	Muscles   int    `json:"muscles"`
	LastSeen  int64  `json:"last_seen"`
	Reachable bool   `json:"reachable"`
}

// InfoToJSON converts a hand.Info to JSON string
func InfoToJSON(info hand.Info) string {
	muscles := info.MuscleNames
	if muscles == nil {
		muscles = []string{}
	}
	joints := info.JointNames
	if joints == nil {
		joints = []string{}
	}

	jsonStruct := InfoJSONFull{
		Name:     info.Name,
		Model:    info.Model,
		Firmware: info.Firmware,
		Serial:   info.Serial,
		Muscles:  muscles,
		Joints:   joints,
		IMUs:     info.IMUCount,
	}

	b, err := json.Marshal(jsonStruct)
	if err != nil {
		panic(err)
	}

	return string(b)
}

// AdvertisementToJSON converts a hand.Advertisement to JSON string
func AdvertisementToJSON(adv hand.Advertisement) string {
	jsonStruct := AdvertisementJSON{
		Address:   adv.Address,
		Name:      adv.Name,
		Model:     adv.Model,
		Muscles:   adv.Muscles,
		LastSeen:  adv.LastSeen.Unix(),
		Reachable: adv.Reachable,
	}

	b, err := json.Marshal(jsonStruct)
	if err != nil {
		panic(err)
	}

	return string(b)
}
