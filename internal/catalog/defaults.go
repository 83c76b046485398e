package catalog

// Defaults is the bundled roster used by `draft-server seed` and by tests.
// Deployments normally replace it via the heroes table.
var Defaults = []Hero{
	{ID: 1, Name: "Aldric", Role: "tank"},
	{ID: 2, Name: "Briala", Role: "support"},
	{ID: 3, Name: "Corvus", Role: "assassin"},
	{ID: 4, Name: "Dahlia", Role: "mage"},
	{ID: 5, Name: "Edrin", Role: "marksman"},
	{ID: 6, Name: "Fenwick", Role: "tank"},
	{ID: 7, Name: "Galena", Role: "fighter"},
	{ID: 8, Name: "Hask", Role: "assassin"},
	{ID: 9, Name: "Isolde", Role: "mage"},
	{ID: 10, Name: "Jorva", Role: "support"},
	{ID: 11, Name: "Kestrel", Role: "marksman"},
	{ID: 12, Name: "Lumen", Role: "mage"},
	{ID: 13, Name: "Morrow", Role: "fighter"},
	{ID: 14, Name: "Nyssa", Role: "assassin"},
	{ID: 15, Name: "Oberon", Role: "tank"},
	{ID: 16, Name: "Phaedra", Role: "support"},
	{ID: 17, Name: "Quillon", Role: "fighter"},
	{ID: 18, Name: "Ravena", Role: "mage"},
	{ID: 19, Name: "Soren", Role: "marksman"},
	{ID: 20, Name: "Thessaly", Role: "support"},
	{ID: 21, Name: "Ulfric", Role: "tank"},
	{ID: 22, Name: "Vex", Role: "assassin"},
	{ID: 23, Name: "Wrenna", Role: "marksman"},
	{ID: 24, Name: "Xanthe", Role: "mage"},
	{ID: 25, Name: "Yorick", Role: "fighter"},
	{ID: 26, Name: "Zephyra", Role: "support"},
}
