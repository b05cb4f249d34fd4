// Copyright 2025 ClearCheck
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package corebank

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/rand"
	"time"

	"clearcheck/platform/checks"
)

var demoPayees = []string{
	"ACME SUPPLY CO",
	"NORTHWIND TRADERS",
	"RIVERSIDE DENTAL GROUP",
	"LAKEVIEW PROPERTY MGMT",
	"SUMMIT LANDSCAPING LLC",
	"HARBOR FREIGHT SERVICES",
	"CEDAR VALLEY FARMS",
	"METRO OFFICE SOLUTIONS",
}

var demoFlags = [][]string{
	nil,
	nil,
	nil,
	{"duplicate_presentment"},
	{"amount_mismatch"},
	nil,
	{"stale_date"},
	nil,
}

// DemoProvider generates plausible presented items without any upstream
// system. Output is deterministic per (tenant, day) so repeated syncs in a
// demo upsert the same batch instead of flooding the queue.
type DemoProvider struct {
	now func() time.Time
}

// NewDemoProvider creates the demo backend.
func NewDemoProvider() *DemoProvider {
	return &DemoProvider{now: time.Now}
}

func demoRand(parts ...string) *rand.Rand {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	seed := binary.BigEndian.Uint64(h.Sum(nil)[:8])
	return rand.New(rand.NewSource(int64(seed)))
}

// FetchPresentedItems generates a daily batch of 6 to 14 items for the
// tenant, filtered by amountMin.
func (p *DemoProvider) FetchPresentedItems(_ context.Context, tenantID string, amountMin float64) ([]*checks.PresentedItem, error) {
	day := p.now().UTC().Format("2006-01-02")
	rng := demoRand("items", tenantID, day)

	count := 6 + rng.Intn(9)
	items := make([]*checks.PresentedItem, 0, count)
	for i := 0; i < count; i++ {
		item := p.generateItem(rng, tenantID, day, i)
		if item.Amount < amountMin {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (p *DemoProvider) generateItem(rng *rand.Rand, tenantID, day string, seq int) *checks.PresentedItem {
	// Log-ish amount spread: mostly small, a long tail past the
	// dual-control threshold.
	amount := float64(rng.Intn(9500)+100) / 10
	switch rng.Intn(10) {
	case 0:
		amount = float64(rng.Intn(45000) + 5000)
	case 1, 2:
		amount = float64(rng.Intn(4000) + 1000)
	}
	amount = float64(int(amount*100)) / 100

	accountNum := fmt.Sprintf("%010d", rng.Intn(1_000_000_000))
	routing := fmt.Sprintf("%09d", rng.Intn(1_000_000_000))
	checkNum := fmt.Sprintf("%d", rng.Intn(9000)+1000)
	presented := p.now().UTC().Truncate(time.Hour)
	checkDate := presented.AddDate(0, 0, -rng.Intn(30))

	itemType := "check"
	if rng.Intn(5) == 0 {
		itemType = "substitute_check"
	}

	return &checks.PresentedItem{
		ExternalItemID: fmt.Sprintf("demo-%s-%s-%03d", tenantID, day, seq),
		Amount:         amount,
		Currency:       "USD",
		AccountID:      "acct-" + accountNum[:6],
		AccountMasked:  "****" + accountNum[len(accountNum)-4:],
		RoutingNumber:  routing,
		CheckNumber:    checkNum,
		PresentedDate:  presented,
		CheckDate:      &checkDate,
		MICRLine:       fmt.Sprintf("⑆%s⑆ %s⑈ %s", routing, accountNum, checkNum),
		PayeeName:      demoPayees[rng.Intn(len(demoPayees))],
		ItemType:       itemType,
		UpstreamFlags:  demoFlags[rng.Intn(len(demoFlags))],
	}
}

// FetchAccountContext derives stable behavior stats from the account ID,
// so the same account always scores the same in a demo.
func (p *DemoProvider) FetchAccountContext(_ context.Context, tenantID, accountID string) (*checks.AccountContext, error) {
	if accountID == "" {
		return nil, nil
	}
	rng := demoRand("account", tenantID, accountID)

	accountType := "checking"
	switch rng.Intn(6) {
	case 0:
		accountType = "savings"
	case 1:
		accountType = "business"
	}

	f := func(v float64) *float64 { return &v }
	tenure := float64(rng.Intn(3600) + 30)
	balance := float64(rng.Intn(95000) + 500)
	avg30 := float64(rng.Intn(2000) + 50)

	ctx := &checks.AccountContext{
		AccountType:       accountType,
		TenureDays:        f(tenure),
		CurrentBalance:    f(balance),
		AvailableBalance:  f(balance * 0.9),
		AvgCheckAmount30d: f(avg30),
		MaxCheckAmount90d: f(avg30 * float64(rng.Intn(8)+2)),
		TotalCheck7d:      f(avg30 * float64(rng.Intn(5)+1)),
		CheckCount7d:      f(float64(rng.Intn(12))),
		ReturnCount90d:    f(float64(rng.Intn(3))),
		OverdraftCount90d: f(float64(rng.Intn(2))),
		NSFCount90d:       f(float64(rng.Intn(2))),
		ImageQuality:      f(0.6 + rng.Float64()*0.4),
	}
	return ctx, nil
}
