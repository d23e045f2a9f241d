// Package seed builds the fixed dataset the store starts from when durable
// storage holds no tables yet. Districts, clients, addresses and the
// credential list are static; meters and readings are generated from a fixed
// random source so every reseed produces the same shape of data.
package seed

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/releves-ma/si-releves/internal/model"
)

// Data is the full seed dataset.
type Data struct {
	Users       []model.User
	Districts   []model.District
	Clients     []model.Client
	Agents      []model.Agent
	Addresses   []model.Address
	Meters      []model.Meter
	Readings    []model.Reading
	Credentials []model.Credential
}

// Build assembles the dataset. Reading dates are spread over the 90 days
// preceding now.
func Build(now time.Time) *Data {
	d := &Data{
		Users:       users(),
		Districts:   districts(),
		Clients:     clients(),
		Agents:      agents(),
		Credentials: credentials(),
	}
	d.Addresses = addresses(d.Districts, d.Clients)

	rng := rand.New(rand.NewSource(42))
	d.Meters = meters(rng, d.Addresses)
	d.Readings = readings(rng, now, d.Meters, d.Agents)
	return d
}

func districts() []model.District {
	names := []string{"Agdal", "Hassan", "Yacoub El Mansour", "Souissi", "Océan", "Akkari", "Hay Riad", "Témara"}
	out := make([]model.District, 0, len(names))
	for i, name := range names {
		out = append(out, model.District{ID: fmt.Sprintf("d%d", i+1), Name: name})
	}
	return out
}

func users() []model.User {
	mk := func(id, email, first, last string, role model.UserRole, created string) model.User {
		t, _ := time.Parse(time.RFC3339, created)
		return model.User{ID: id, Email: email, FirstName: first, LastName: last, Role: role, CreatedAt: t, UpdatedAt: t}
	}
	return []model.User{
		mk("u1", "admin@ree.ma", "Admin", "Super", model.RoleSuperAdmin, "2024-01-15T10:00:00Z"),
		mk("u2", "user@ree.ma", "User", "Standard", model.RoleUser, "2024-02-20T14:30:00Z"),
		mk("u3", "mohammed.alami@ree.ma", "Mohammed", "Alami", model.RoleUser, "2024-03-10T09:00:00Z"),
		mk("u4", "fatima.benali@ree.ma", "Fatima", "Benali", model.RoleUser, "2024-04-05T11:00:00Z"),
	}
}

func clients() []model.Client {
	names := []string{
		"Ahmed Benjelloun", "Sara Elhaddad", "Youssef Tazi", "Nadia Chraibi", "Karim Fassi",
		"Zineb Bennani", "Omar Kettani", "Laila Berrada", "Hassan Zouaoui", "Amina Sefrioui",
		"Rachid Boutaleb", "Khadija Mernissi", "Driss Benkiran", "Salma Ouazzani", "Mehdi Lahlou",
	}
	out := make([]model.Client, 0, len(names))
	for i, name := range names {
		out = append(out, model.Client{
			ID:         fmt.Sprintf("c%d", i+1),
			ExternalID: fmt.Sprintf("EXT-%03d", i+1),
			Name:       name,
		})
	}
	return out
}

func agents() []model.Agent {
	return []model.Agent{
		{ID: "a1", FirstName: "Hamid", LastName: "Moussaoui", Phone: "0661234567", SecondaryPhone: "0522123456", DistrictID: "d1"},
		{ID: "a2", FirstName: "Khalid", LastName: "Benjelloun", Phone: "0662345678", DistrictID: "d2"},
		{ID: "a3", FirstName: "Said", LastName: "Elbaz", Phone: "0663456789", SecondaryPhone: "0522234567", DistrictID: "d3"},
		{ID: "a4", FirstName: "Rachid", LastName: "Tahiri", Phone: "0664567890", DistrictID: "d4"},
		{ID: "a5", FirstName: "Yassine", LastName: "Berrada", Phone: "0665678901", DistrictID: "d5"},
		{ID: "a6", FirstName: "Mourad", LastName: "Cherkaoui", Phone: "0666789012", SecondaryPhone: "0522345678", DistrictID: "d6"},
		{ID: "a7", FirstName: "Abdellatif", LastName: "Naciri", Phone: "0667890123", DistrictID: "d7"},
		{ID: "a8", FirstName: "Jamal", LastName: "Idrissi", Phone: "0668901234", DistrictID: "d8"},
		{ID: "a9", FirstName: "Noureddine", LastName: "Fassi", Phone: "0669012345", SecondaryPhone: "0522456789", DistrictID: "d1"},
		{ID: "a10", FirstName: "Brahim", LastName: "Kettani", Phone: "0660123456", DistrictID: "d2"},
	}
}

func credentials() []model.Credential {
	return []model.Credential{
		{Email: "admin@ree.ma", Password: "Admin123!", UserID: "u1"},
		{Email: "user@ree.ma", Password: "User123!", UserID: "u2"},
	}
}

func addresses(districts []model.District, clients []model.Client) []model.Address {
	streets := []string{
		"Avenue Mohammed V", "Rue Ibn Toumert", "Boulevard Hassan II", "Rue Oued Fes",
		"Avenue Fal Ould Oumeir", "Rue Cadi Ayad", "Boulevard Zerktouni", "Avenue Allal Ben Abdellah",
		"Rue Jebel Tazeka", "Boulevard Moulay Ismail", "Avenue Atlas", "Rue Sebou",
	}
	out := make([]model.Address, 0, 50)
	for i := 0; i < 50; i++ {
		out = append(out, model.Address{
			ID:         fmt.Sprintf("addr%d", i+1),
			Street:     streets[i%len(streets)],
			Number:     fmt.Sprintf("%d", (i*7+3)%200+1),
			DistrictID: districts[i%len(districts)].ID,
			ClientID:   clients[i%len(clients)].ID,
		})
	}
	return out
}

// meters gives most addresses a water meter, most an electricity meter, some
// both. Identifiers are sequential zero-padded 9-digit strings.
func meters(rng *rand.Rand, addrs []model.Address) []model.Meter {
	var out []model.Meter
	idx := 1
	add := func(a model.Address, mt model.MeterType, index int) {
		out = append(out, model.Meter{
			ID:           fmt.Sprintf("m%d", idx),
			Identifier:   fmt.Sprintf("%09d", idx),
			Type:         mt,
			AddressID:    a.ID,
			ClientID:     a.ClientID,
			CurrentIndex: index,
			CreatedAt:    time.Date(2024, time.January, 1+idx%28, 0, 0, 0, 0, time.UTC),
		})
		idx++
	}
	for i, a := range addrs {
		if i%3 != 2 {
			add(a, model.MeterWater, rng.Intn(5000)+1000)
		}
		if i%4 != 3 {
			add(a, model.MeterElectricity, rng.Intn(20000)+5000)
		}
	}
	return out
}

// readings spreads 320 captures over the trailing 90 days, walking each
// meter's index backwards so consumption always matches the index delta.
func readings(rng *rand.Rand, now time.Time, ms []model.Meter, ags []model.Agent) []model.Reading {
	out := make([]model.Reading, 0, 320)
	for i := 0; i < 320; i++ {
		meter := &ms[i%len(ms)]
		agent := ags[i%len(ags)]

		daysAgo := rng.Intn(90)
		date := now.AddDate(0, 0, -daysAgo)
		date = time.Date(date.Year(), date.Month(), date.Day(), 8+rng.Intn(8), rng.Intn(60), 0, 0, time.UTC)

		var consumption int
		if meter.Type == model.MeterWater {
			consumption = rng.Intn(30) + 5 // m³
		} else {
			consumption = rng.Intn(200) + 50 // kWh
		}

		oldIndex := meter.CurrentIndex - consumption*(i/len(ms)+1)
		if oldIndex < 0 {
			oldIndex = 0
		}
		newIndex := oldIndex + consumption

		r := model.Reading{
			ID:          fmt.Sprintf("r%d", i+1),
			MeterID:     meter.ID,
			AgentID:     agent.ID,
			Date:        date,
			OldIndex:    oldIndex,
			NewIndex:    newIndex,
			Consumption: consumption,
			Type:        meter.Type,
		}
		if i%10 == 0 {
			r.Notes = "Compteur difficile d'accès"
		}
		out = append(out, r)

		if meter.LastReadingDate == nil || meter.LastReadingDate.Before(date) {
			d := date
			meter.LastReadingDate = &d
			meter.CurrentIndex = newIndex
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}
