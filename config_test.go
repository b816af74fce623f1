package updater

import (
	"io/ioutil"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/troian/toml"
)

func TestNewMinimumConfig(t *testing.T) {
	envURL := "http://foo.bar"
	envChannel := "beta"

	os.Setenv("LUMEN_UPDATE_URL", envURL)
	os.Setenv("LUMEN_RELEASE_CHANNEL", envChannel)

	mvc := NewMinimumConfig()

	assert.Equal(t, envURL, mvc.UpdateCheckURL, "UpdateCheckURL should be set from env")
	assert.Equal(t, envChannel, mvc.ReleaseChannel, "ReleaseChannel should be set from env")

	// Unset in the end for cleanup
	defer os.Clearenv()
}

func TestTryUpdateConfigFromFile(t *testing.T) {
	config := Config{
		PidFile:        "fooPID",
		CheckInterval:  86400,
		ReleaseChannel: "stable",
		AutoCheck:      true,
	}

	const sampleConfig = `
pid = "/pid"
check_interval = 7200.0
release_channel = "beta"
auto_check = false
`

	tmpFile, err := ioutil.TempFile("", "")
	assert.Nil(t, err)
	defer os.Remove(tmpFile.Name())

	err = ioutil.WriteFile(tmpFile.Name(), []byte(sampleConfig), 0755)
	assert.Nil(t, err)

	err = TryUpdateConfigFromFile(&config, tmpFile.Name())
	assert.Nil(t, err)

	assert.Equal(t, "/pid", config.PidFile)
	assert.Equal(t, 7200.0, config.CheckInterval)
	assert.Equal(t, "beta", config.ReleaseChannel)
	assert.Equal(t, false, config.AutoCheck)
}

func TestGenerateDefaultConfigFile(t *testing.T) {
	mvc := &MinValuableConfig{
		LogLevel:       "debug",
		ReleaseChannel: "beta",
	}

	tmpFile, err := ioutil.TempFile("", "")
	assert.Nil(t, err)
	defer os.Remove(tmpFile.Name())

	err = GenerateDefaultConfigFile(mvc, tmpFile.Name())
	assert.Nil(t, err)

	loadedMVC := &MinValuableConfig{}
	_, err = toml.DecodeReader(tmpFile, loadedMVC)
	assert.Nil(t, err)

	if !assert.ObjectsAreEqual(*mvc, *loadedMVC) {
		t.Errorf("expected %+v, got %+v", *mvc, *loadedMVC)
	}
}

func TestHandleAllConfigSetup(t *testing.T) {
	t.Run("config-file-does-exist", func(t *testing.T) {
		const sampleConfig = `
update_check_url = "https://updates.example.com/check"
check_interval = 7200.0
check_retry_interval = 120.0
auto_check = false
`

		tmpFile, err := ioutil.TempFile("", "")
		assert.Nil(t, err)
		defer os.Remove(tmpFile.Name())

		err = ioutil.WriteFile(tmpFile.Name(), []byte(sampleConfig), 0755)
		assert.Nil(t, err)

		config, err := HandleAllConfigSetup(tmpFile.Name())
		assert.Nil(t, err)

		assert.Equal(t, "https://updates.example.com/check", config.UpdateCheckURL)
		assert.Equal(t, 7200.0, config.CheckInterval)
		assert.Equal(t, 120.0, config.RetryInterval)
		assert.Equal(t, false, config.AutoCheck)
	})

	t.Run("config-file-does-not-exist", func(t *testing.T) {
		// Create a temp file to get a file path we can use for temp
		// config generation. But delete it so we can actually write our
		// config file under the path.
		tmpFile, err := ioutil.TempFile("", "")
		assert.Nil(t, err)
		configFilePath := tmpFile.Name()
		err = os.Remove(tmpFile.Name())
		assert.Nil(t, err)

		_, err = HandleAllConfigSetup(configFilePath)
		assert.Nil(t, err)

		_, err = os.Stat(configFilePath)
		assert.Nil(t, err)

		mvc := NewMinimumConfig()
		loadedMVC := &MinValuableConfig{}
		_, err = toml.DecodeFile(configFilePath, loadedMVC)
		assert.Nil(t, err)

		if !assert.ObjectsAreEqual(*mvc, *loadedMVC) {
			t.Errorf("expected %+v, got %+v", *mvc, *loadedMVC)
		}
	})

	t.Run("invalid-interval-value-specified", func(t *testing.T) {
		const sampleConfig = `
check_interval = 100.0
`

		tmpFile, err := ioutil.TempFile("", "")
		assert.Nil(t, err)
		defer os.Remove(tmpFile.Name())

		err = ioutil.WriteFile(tmpFile.Name(), []byte(sampleConfig), 0755)
		assert.Nil(t, err)

		_, err = HandleAllConfigSetup(tmpFile.Name())
		assert.Error(t, err)

	})

	t.Run("invalid-retry-interval-value-specified", func(t *testing.T) {
		const sampleConfig = `
check_interval = 7200.0
check_retry_interval = 5.0
`

		tmpFile, err := ioutil.TempFile("", "")
		assert.Nil(t, err)
		defer os.Remove(tmpFile.Name())

		err = ioutil.WriteFile(tmpFile.Name(), []byte(sampleConfig), 0755)
		assert.Nil(t, err)

		_, err = HandleAllConfigSetup(tmpFile.Name())
		assert.Error(t, err)

	})
}

func TestSecToDuration(t *testing.T) {
	assert.Equal(t, 90*time.Second, secToDuration(90))
	assert.Equal(t, 1500*time.Millisecond, secToDuration(1.5))
}
