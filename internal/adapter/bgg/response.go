package bgg

import "encoding/xml"

// Wire types for the XML API. Only the attributes the catalog consumes are
// mapped; everything else is ignored by the decoder.

type collectionResponse struct {
	XMLName xml.Name         `xml:"items"`
	Items   []collectionItem `xml:"item"`
}

type collectionItem struct {
	ObjectID string `xml:"objectid,attr"`
	Subtype  string `xml:"subtype,attr"`
	Name     string `xml:"name"`
	Stats    struct {
		Rating struct {
			Average struct {
				Value string `xml:"value,attr"`
			} `xml:"average"`
			UsersRated struct {
				Value string `xml:"value,attr"`
			} `xml:"usersrated"`
		} `xml:"rating"`
	} `xml:"stats"`
}

type thingsResponse struct {
	XMLName xml.Name    `xml:"items"`
	Items   []thingItem `xml:"item"`
}

type thingItem struct {
	ID            string      `xml:"id,attr"`
	Type          string      `xml:"type,attr"`
	YearPublished attrValue   `xml:"yearpublished"`
	Links         []thingLink `xml:"link"`
	Polls         []thingPoll `xml:"poll"`
	Statistics    struct {
		Ratings struct {
			Average       attrValue `xml:"average"`
			UsersRated    attrValue `xml:"usersrated"`
			AverageWeight attrValue `xml:"averageweight"`
			NumWeights    attrValue `xml:"numweights"`
			Ranks         struct {
				Ranks []thingRank `xml:"rank"`
			} `xml:"ranks"`
		} `xml:"ratings"`
	} `xml:"statistics"`
}

type attrValue struct {
	Value string `xml:"value,attr"`
}

type thingLink struct {
	Type  string `xml:"type,attr"`
	Value string `xml:"value,attr"`
}

type thingRank struct {
	Type  string `xml:"type,attr"`
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type thingPoll struct {
	Name    string `xml:"name,attr"`
	Results []struct {
		NumPlayers string `xml:"numplayers,attr"`
		Result     []struct {
			Value    string `xml:"value,attr"`
			NumVotes int    `xml:"numvotes,attr"`
		} `xml:"result"`
	} `xml:"results"`
}

// familyRankNames maps family rank slugs from the ranks block onto the
// display names stored in the families vocabulary.
var familyRankNames = map[string]string{
	"thematic":       "Thematic",
	"strategygames":  "Strategy",
	"abstracts":      "Abstract",
	"childrensgames": "Children's Game",
	"cgs":            "Customizable",
	"familygames":    "Family",
	"partygames":     "Party Game",
	"wargames":       "Wargame",
}
