package service

import (
	"sort"

	"naval-battle/internal/domain"
)

// Outcome 是一次攻击的结算结果。ShipID 在未命中时为空。
type Outcome struct {
	Cell   string              `json:"cell"`
	Result domain.AttackResult `json:"result"`
	ShipID string              `json:"ship_id,omitempty"`
}

// ResolveAttack 根据对手舰队和己方之前攻击过的格子结算 cell。
// 调用方负责保证 cell 尚未被自己攻击过。
func ResolveAttack(cell string, opponentFleet domain.Fleet, priorAttacked []string) Outcome {
	out := Outcome{Cell: cell, Result: domain.ResultMiss}
	shipID := opponentFleet.ShipAt(cell)
	if shipID == "" {
		return out
	}
	out.ShipID = shipID

	attacked := make(map[string]struct{}, len(priorAttacked)+1)
	for _, c := range priorAttacked {
		attacked[c] = struct{}{}
	}
	attacked[cell] = struct{}{}

	if allAttacked(opponentFleet[shipID], attacked) {
		out.Result = domain.ResultSunk
	} else {
		out.Result = domain.ResultHit
		return out
	}
	for id, cells := range opponentFleet {
		if id != shipID && !allAttacked(cells, attacked) {
			return out
		}
	}
	out.Result = domain.ResultFinished
	return out
}

// NextTurn 返回攻击之后的行动方；终局时返回 SlotNone。
func NextTurn(attacker domain.Slot, result domain.AttackResult) domain.Slot {
	if result == domain.ResultFinished {
		return domain.SlotNone
	}
	return attacker.Other()
}

func allAttacked(cells []string, attacked map[string]struct{}) bool {
	for _, c := range cells {
		if _, ok := attacked[c]; !ok {
			return false
		}
	}
	return true
}

// DamageReport 是由攻击记录和舰队布局推导出的战损视图。
type DamageReport struct {
	Hits     []string `json:"hits"`
	Misses   []string `json:"misses"`
	Sunk     []string `json:"sunk"`
	Defeated bool     `json:"defeated"`
}

// FleetDamage 计算 attacker 对 fleet 造成的战损。
// 只依据格子几何判定，不信任记录里的 result，双方各自计算得到相同结果。
func FleetDamage(fleet domain.Fleet, attacks []domain.Attack, attacker domain.Slot) DamageReport {
	report := DamageReport{Hits: []string{}, Misses: []string{}, Sunk: []string{}}
	attacked := make(map[string]struct{})
	for _, a := range attacks {
		if a.AttackerSlot != attacker {
			continue
		}
		if _, dup := attacked[a.Cell]; dup {
			continue
		}
		attacked[a.Cell] = struct{}{}
		if fleet.ShipAt(a.Cell) != "" {
			report.Hits = append(report.Hits, a.Cell)
		} else {
			report.Misses = append(report.Misses, a.Cell)
		}
	}
	for id, cells := range fleet {
		if len(cells) > 0 && allAttacked(cells, attacked) {
			report.Sunk = append(report.Sunk, id)
		}
	}
	sort.Strings(report.Sunk)
	report.Defeated = len(fleet) > 0 && len(report.Sunk) == len(fleet)
	return report
}
