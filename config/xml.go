/*
DESCRIPTION
  xml.go provides reading and writing of the Config from and to the Device
  element of an XML device configuration tree, e.g.

    <PlusConfiguration>
      <DataCollection>
        <Device Id="VideoDevice" Type="ICCapturing" DeviceName="DFG/USB2-lt"
          VideoNorm="PAL_B" VideoFormat="Y800" FrameSize="640 480"
          InputChannel="01 Video: SVideo" ICBufferSize="50"
          ClipRectangleOrigin="0 0" ClipRectangleSize="0 0">
          <DataSources>
            <DataSource Type="Video" Id="Video" PortUsImageOrientation="MF"/>
          </DataSources>
          <OutputChannels>
            <OutputChannel Id="VideoStream" VideoDataSourceId="Video"/>
          </OutputChannels>
        </Device>
      </DataCollection>
    </PlusConfiguration>

AUTHORS
  The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package config

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/beevik/etree"
)

// DeviceType is the Type attribute of IC capture device elements.
const DeviceType = "ICCapturing"

// Element and attribute names of the configuration tree.
const (
	elemDataCollection = "DataCollection"
	elemDevice         = "Device"
	elemDataSources    = "DataSources"
	elemDataSource     = "DataSource"
	elemOutputChannels = "OutputChannels"
	elemOutputChannel  = "OutputChannel"

	attrID                   = "Id"
	attrType                 = "Type"
	attrBufferSize           = "BufferSize"
	attrPortImageOrientation = "PortUsImageOrientation"
	attrVideoDataSourceID    = "VideoDataSourceId"
)

var errNoRoot = errors.New("no root configuration element")

// Load reads the XML configuration file at path into c. The parsed document
// is returned so that it can be written back with WriteXML.
func Load(path string, c *Config) (*etree.Document, error) {
	doc := etree.NewDocument()
	err := doc.ReadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read configuration file: %w", err)
	}
	err = c.ReadXML(doc.Root())
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// DeviceElement returns the Device element of root for the device with the
// given id. If id is empty the first ICCapturing device is returned.
func DeviceElement(root *etree.Element, id string) (*etree.Element, error) {
	if root == nil {
		return nil, errNoRoot
	}
	dc := root.SelectElement(elemDataCollection)
	if dc == nil {
		return nil, fmt.Errorf("no %s element in configuration", elemDataCollection)
	}
	for _, d := range dc.SelectElements(elemDevice) {
		if id == "" && d.SelectAttrValue(attrType, "") == DeviceType {
			return d, nil
		}
		if id != "" && d.SelectAttrValue(attrID, "") == id {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no %s element with id %q in configuration", elemDevice, id)
}

// ReadXML reads the device's attributes, data sources and output channels
// from the configuration tree rooted at root. Previously configured data
// sources and output channels are discarded. Attributes that are absent or
// cannot be parsed leave the corresponding fields unchanged.
func (c *Config) ReadXML(root *etree.Element) error {
	el, err := DeviceElement(root, c.DeviceID)
	if err != nil {
		return fmt.Errorf("could not find device element for reading: %w", err)
	}
	c.DeviceID = el.SelectAttrValue(attrID, c.DeviceID)

	c.Sources = nil
	c.OutputChannels = nil

	vars := make(map[string]string, len(el.Attr))
	for _, a := range el.Attr {
		vars[a.Key] = a.Value
	}
	c.Update(vars)

	// VideoFormat used to hold the frame size as well; split it if so.
	c.ParseLegacyVideoFormat()

	for _, s := range el.FindElements("./" + elemDataSources + "/" + elemDataSource) {
		ds := DataSource{
			ID:                   s.SelectAttrValue(attrID, ""),
			Type:                 s.SelectAttrValue(attrType, ""),
			PortImageOrientation: s.SelectAttrValue(attrPortImageOrientation, ""),
		}
		if v := s.SelectAttrValue(attrBufferSize, ""); v != "" {
			ds.BufferSize, _ = parseInt(attrBufferSize, v, c)
		}
		if ds.ID == "" {
			c.Logger.Warning("ignoring data source without id")
			continue
		}
		c.Sources = append(c.Sources, ds)
	}

	for _, o := range el.FindElements("./" + elemOutputChannels + "/" + elemOutputChannel) {
		oc := OutputChannel{
			ID:            o.SelectAttrValue(attrID, ""),
			VideoSourceID: o.SelectAttrValue(attrVideoDataSourceID, ""),
		}
		if oc.ID == "" {
			c.Logger.Warning("ignoring output channel without id")
			continue
		}
		c.OutputChannels = append(c.OutputChannels, oc)
	}
	return nil
}

// WriteXML writes the device's attributes to the device element of the
// configuration tree rooted at root. Empty string fields are removed.
func (c *Config) WriteXML(root *etree.Element) error {
	el, err := DeviceElement(root, c.DeviceID)
	if err != nil {
		return fmt.Errorf("could not find device element for writing: %w", err)
	}

	setString := func(key, value string) {
		if value == "" {
			el.RemoveAttr(key)
			return
		}
		el.CreateAttr(key, value)
	}
	setString(KeyDeviceName, c.DeviceName)
	setString(KeyVideoNorm, c.VideoNorm)
	setString(KeyVideoFormat, c.VideoFormat)
	el.CreateAttr(KeyFrameSize, formatVec2(c.FrameSize))
	setString(KeyInputChannel, c.InputChannel)
	el.CreateAttr(KeyICBufferSize, strconv.Itoa(c.ICBufferSize))
	el.CreateAttr(KeyClipRectangleOrigin, formatVec2(c.ClipRectangleOrigin))
	el.CreateAttr(KeyClipRectangleSize, formatVec2(c.ClipRectangleSize))
	return nil
}
